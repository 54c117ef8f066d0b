// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates row identifiers.

Tags arrive from the ingestion stream with their ids already assigned; the
story engine mints ids only for rows it owns, such as tag instances and
citations created by a batch. Those use Version 7 values so new rows land at
the right edge of the primary key B-tree.
*/
package uuid

import "github.com/google/uuid"

// New generates a new UUIDv7.
func New() uuid.UUID {
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUID: " + err.Error())
	}

	return id
}
