// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storyindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/platform/database/schema"
	"github.com/taibuivan/historyatlas/internal/platform/dberr"
	"github.com/taibuivan/historyatlas/pkg/slice"
)

// PostgresIndex implements [Index] on a pgx connection pool.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex wraps an existing pool.
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// postgresTx is the view handed to order and ingestion callbacks.
type postgresTx struct {
	tx pgx.Tx
}

// # Shared SQL Fragments

var (
	ti = schema.AtlasTagInstance
	tm = schema.AtlasTime

	// instanceColumns selects a full tag instance from alias "ti".
	instanceColumns = fmt.Sprintf("ti.%s, ti.%s, ti.%s, ti.%s, ti.%s, ti.%s, ti.%s",
		ti.ID, ti.SummaryID, ti.TagID, ti.StartChar, ti.StopChar, ti.StoryOrder, ti.After)
)

/*
eventDateJoin resolves the event date of the summary referenced by
summaryColumn: the chronologically earliest time tag mentioned in it.

The lateral row "ed" exposes datetime, calendar_model, precision, year, month
and day, all NULL for undated summaries.
*/
func eventDateJoin(summaryColumn string) string {
	return fmt.Sprintf(`
		LEFT JOIN LATERAL (
			SELECT t.%s AS datetime, t.%s AS calendar_model, t.%s AS precision,
			       t.%s AS year, t.%s AS month, t.%s AS day
			FROM %s dti
			JOIN %s t ON t.%s = dti.%s
			WHERE dti.%s = %s
			ORDER BY t.%s, t.%s, t.%s, t.%s
			LIMIT 1
		) ed ON TRUE`,
		tm.DateTime, tm.CalendarModel, tm.Precision, tm.Year, tm.Month, tm.Day,
		ti.Table, tm.Table, tm.ID, ti.TagID,
		ti.SummaryID, summaryColumn,
		tm.Year, tm.Month, tm.Day, tm.Precision,
	)
}

// eventDateColumns are the chronological key columns of "ed".
const eventDateColumns = "ed.year, ed.month, ed.day, ed.precision"

// # Scanning

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (atlas.TagInstance, error) {
	var (
		instance atlas.TagInstance
		after    []byte
	)
	if err := row.Scan(
		&instance.ID, &instance.SummaryID, &instance.TagID,
		&instance.StartChar, &instance.StopChar, &instance.StoryOrder, &after,
	); err != nil {
		return instance, err
	}

	parsed, err := atlas.ParseAfterColumn(after)
	if err != nil {
		return instance, err
	}
	instance.After = parsed
	return instance, nil
}

func collectInstances(rows pgx.Rows, action string) ([]atlas.TagInstance, error) {
	defer rows.Close()

	var instances []atlas.TagInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, dberr.Wrap(err, action)
		}
		instances = append(instances, instance)
	}
	return instances, dberr.Wrap(rows.Err(), action)
}

// dateColumns receives the nullable chronological key of "ed".
type dateColumns struct {
	Year      *int64
	Month     *int16
	Day       *int16
	Precision *int16
}

func (columns *dateColumns) targets() []any {
	return []any{&columns.Year, &columns.Month, &columns.Day, &columns.Precision}
}

func (columns dateColumns) date() *chrono.Date {
	if columns.Year == nil || columns.Precision == nil {
		return nil
	}
	date := chrono.Date{Year: *columns.Year, Precision: chrono.Precision(*columns.Precision)}
	if columns.Month != nil {
		date.Month = int(*columns.Month)
	}
	if columns.Day != nil {
		date.Day = int(*columns.Day)
	}
	return &date
}

// # Identifiers & Errors

// idArgs encodes ids for a $n::uuid[] parameter.
func idArgs(ids []uuid.UUID) []string {
	return slice.Map(ids, uuid.UUID.String)
}

// orderError maps story order index violations onto the domain conflict.
func orderError(err error, tagID uuid.UUID, order int64) error {
	if err == nil {
		return nil
	}
	if dberr.IsStoryOrderViolation(err) || dberr.IsRetryable(err) {
		return &atlas.StoryOrderConflictError{TagID: tagID, Order: order, Cause: err}
	}
	return err
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (index *PostgresIndex) inTx(context context.Context, setup string, fn func(pgx.Tx) error) error {
	transaction, err := index.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: transaction begin failed: %w", err)
	}

	// Safe after commit; releases the connection on every error path.
	defer transaction.Rollback(context)

	if setup != "" {
		if _, err := transaction.Exec(context, setup); err != nil {
			return dberr.Wrap(err, "transaction_setup")
		}
	}

	if err := fn(transaction); err != nil {
		return err
	}

	if err := transaction.Commit(context); err != nil {
		var conflict *atlas.StoryOrderConflictError
		if mapped := orderError(err, uuid.Nil, 0); errors.As(mapped, &conflict) {
			return mapped
		}
		return fmt.Errorf("postgres: transaction commit failed: %w", err)
	}
	return nil
}
