// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storyindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/platform/dberr"
)

// # OrderStore

/*
InOrderTx runs fn in a transaction whose story order uniqueness check is
deferred to commit.

Description: Deferring lets a rebalance shift every rung of a ladder in one
batch without tripping over transient duplicates. A duplicate that survives
to commit is reported as [atlas.StoryOrderConflictError].
*/
func (index *PostgresIndex) InOrderTx(context context.Context, fn func(OrderTx) error) error {
	setup := fmt.Sprintf("SET CONSTRAINTS %s DEFERRED", ti.OrderConstraint)
	return index.inTx(context, setup, func(transaction pgx.Tx) error {
		return fn(&postgresTx{tx: transaction})
	})
}

func (index *PostgresIndex) PendingInstances(context context.Context, cursor *uuid.UUID, limit int) ([]atlas.PendingInstance, error) {
	var cursorArg *string
	if cursor != nil {
		value := cursor.String()
		cursorArg = &value
	}

	query := fmt.Sprintf(`
		SELECT ti.%s, ti.%s, ti.%s, ti.%s, %s
		FROM %s ti %s
		WHERE ti.%s IS NULL AND ($1::uuid IS NULL OR ti.%s > $1::uuid)
		ORDER BY ti.%s
		LIMIT $2`,
		ti.ID, ti.TagID, ti.SummaryID, ti.After, eventDateColumns,
		ti.Table, eventDateJoin("ti."+ti.SummaryID),
		ti.StoryOrder, ti.ID,
		ti.ID,
	)

	rows, err := index.pool.Query(context, query, cursorArg, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "pending_instances")
	}
	defer rows.Close()

	var pending []atlas.PendingInstance
	for rows.Next() {
		var (
			instance atlas.PendingInstance
			after    []byte
			columns  dateColumns
		)
		targets := append([]any{&instance.ID, &instance.TagID, &instance.SummaryID, &after}, columns.targets()...)
		if err := rows.Scan(targets...); err != nil {
			return nil, dberr.Wrap(err, "scan_pending_instance")
		}
		if instance.After, err = atlas.ParseAfterColumn(after); err != nil {
			return nil, dberr.Wrap(err, "decode_pending_after")
		}
		instance.Date = columns.date()
		pending = append(pending, instance)
	}
	return pending, dberr.Wrap(rows.Err(), "pending_instances")
}

func (index *PostgresIndex) CountPending(context context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, ti.Table, ti.StoryOrder)

	var count int64
	if err := index.pool.QueryRow(context, query).Scan(&count); err != nil {
		return 0, dberr.Wrap(err, "count_pending")
	}
	return count, nil
}

// CreateBulkIndex builds a partial index over NULL-order rows so the backfill
// scan skips the ordered bulk of the table.
func (index *PostgresIndex) CreateBulkIndex(context context.Context) error {
	query := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s IS NULL`,
		ti.BulkIndex, ti.Table, ti.ID, ti.StoryOrder)

	_, err := index.pool.Exec(context, query)
	return dberr.Wrap(err, "create_bulk_index")
}

func (index *PostgresIndex) DropBulkIndex(context context.Context) error {
	_, err := index.pool.Exec(context, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, ti.BulkIndex))
	return dberr.Wrap(err, "drop_bulk_index")
}

// # Order Transaction

// LockTag takes a transaction scoped advisory lock keyed by the tag id.
func (transaction *postgresTx) LockTag(context context.Context, tagID uuid.UUID) error {
	_, err := transaction.tx.Exec(context, `SELECT pg_advisory_xact_lock(hashtext($1))`, tagID.String())
	return dberr.Wrap(err, "lock_tag")
}

func (transaction *postgresTx) LoadInstance(context context.Context, instanceID uuid.UUID) (atlas.TagInstance, *chrono.Date, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s ti %s WHERE ti.%s = $1`,
		instanceColumns, eventDateColumns, ti.Table, eventDateJoin("ti."+ti.SummaryID), ti.ID)

	var (
		instance atlas.TagInstance
		after    []byte
		columns  dateColumns
	)
	targets := append([]any{
		&instance.ID, &instance.SummaryID, &instance.TagID,
		&instance.StartChar, &instance.StopChar, &instance.StoryOrder, &after,
	}, columns.targets()...)

	if err := transaction.tx.QueryRow(context, query, instanceID).Scan(targets...); err != nil {
		if dberr.IsNotFound(err) {
			return instance, nil, atlas.NewMissing("tag instance", instanceID)
		}
		return instance, nil, dberr.Wrap(err, "load_instance")
	}

	parsed, err := atlas.ParseAfterColumn(after)
	if err != nil {
		return instance, nil, dberr.Wrap(err, "decode_instance_after")
	}
	instance.After = parsed
	return instance, columns.date(), nil
}

func (transaction *postgresTx) Ladder(context context.Context, tagID uuid.UUID) ([]atlas.Rung, error) {
	query := fmt.Sprintf(`
		SELECT ti.%s, ti.%s, ti.%s, %s
		FROM %s ti %s
		WHERE ti.%s = $1 AND ti.%s IS NOT NULL
		ORDER BY ti.%s`,
		ti.ID, ti.SummaryID, ti.StoryOrder, eventDateColumns,
		ti.Table, eventDateJoin("ti."+ti.SummaryID),
		ti.TagID, ti.StoryOrder,
		ti.StoryOrder,
	)

	rows, err := transaction.tx.Query(context, query, tagID)
	if err != nil {
		return nil, dberr.Wrap(err, "ladder")
	}
	defer rows.Close()

	var ladder []atlas.Rung
	for rows.Next() {
		var (
			rung    atlas.Rung
			columns dateColumns
		)
		targets := append([]any{&rung.InstanceID, &rung.SummaryID, &rung.Order}, columns.targets()...)
		if err := rows.Scan(targets...); err != nil {
			return nil, dberr.Wrap(err, "scan_rung")
		}
		rung.Date = columns.date()
		ladder = append(ladder, rung)
	}
	return ladder, dberr.Wrap(rows.Err(), "ladder")
}

func (transaction *postgresTx) ResolveAfter(context context.Context, tagID uuid.UUID, after atlas.After) (map[uuid.UUID]*int64, error) {
	resolved := make(map[uuid.UUID]*int64, after.Len())
	if after.Empty() {
		return resolved, nil
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = $1 AND %s = ANY($2::uuid[])`,
		ti.SummaryID, ti.StoryOrder, ti.Table, ti.TagID, ti.SummaryID)

	rows, err := transaction.tx.Query(context, query, tagID, idArgs(after.IDs()))
	if err != nil {
		return nil, dberr.Wrap(err, "resolve_after")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			summaryID uuid.UUID
			order     *int64
		)
		if err := rows.Scan(&summaryID, &order); err != nil {
			return nil, dberr.Wrap(err, "scan_resolved_after")
		}
		resolved[summaryID] = order
	}
	return resolved, dberr.Wrap(rows.Err(), "resolve_after")
}

func (transaction *postgresTx) UpdateStoryOrder(context context.Context, instanceID uuid.UUID, order int64) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`, ti.Table, ti.StoryOrder, ti.ID)

	tag, err := transaction.tx.Exec(context, query, instanceID, order)
	if err != nil {
		return dberr.Wrap(orderError(err, uuid.Nil, order), "update_story_order")
	}
	if tag.RowsAffected() == 0 {
		return atlas.NewMissing("tag instance", instanceID)
	}
	return nil
}

/*
ApplyOrders writes every update of a batch or rebalance in one round trip.

Description: Updates are queued on a pgx.Batch and their results drained in
order, so the first failing statement is the one reported.
*/
func (transaction *postgresTx) ApplyOrders(context context.Context, updates []atlas.OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`, ti.Table, ti.StoryOrder, ti.ID)

	batch := &pgx.Batch{}
	for _, update := range updates {
		batch.Queue(query, update.InstanceID, update.Order)
	}

	result := transaction.tx.SendBatch(context, batch)
	defer result.Close()

	for _, update := range updates {
		tag, err := result.Exec()
		if err != nil {
			return dberr.Wrap(orderError(err, update.TagID, update.Order), "apply_orders")
		}
		if tag.RowsAffected() == 0 {
			return atlas.NewMissing("tag instance", update.InstanceID)
		}
	}
	return nil
}
