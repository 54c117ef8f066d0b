// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/historyatlas/internal/platform/dberr"
)

/*
TestClassification checks SQLSTATE inspection through wrapped errors.
*/
func TestClassification(t *testing.T) {
	orderViolation := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "23505", ConstraintName: dberr.StoryOrderConstraint})
	otherViolation := &pgconn.PgError{Code: "23505", ConstraintName: "names_name_key"}
	foreignKey := &pgconn.PgError{Code: "23503"}

	assert.True(t, dberr.IsStoryOrderViolation(orderViolation))
	assert.False(t, dberr.IsStoryOrderViolation(otherViolation))
	assert.True(t, dberr.IsUniqueViolation(otherViolation, ""))
	assert.True(t, dberr.IsForeignKeyViolation(foreignKey))
	assert.False(t, dberr.IsForeignKeyViolation(errors.New("plain")))
	assert.True(t, dberr.IsNotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}

/*
TestWrap keeps the cause reachable.
*/
func TestWrap(t *testing.T) {
	assert.Nil(t, dberr.Wrap(nil, "noop"))

	wrapped := dberr.Wrap(pgx.ErrNoRows, "load_ladder")
	assert.ErrorIs(t, wrapped, pgx.ErrNoRows)
	assert.Contains(t, wrapped.Error(), "load_ladder")
}
