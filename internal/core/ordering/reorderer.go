// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ordering

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/metrics"
	"github.com/taibuivan/historyatlas/pkg/slice"
)

// # Options & Report

const (
	DefaultBatchSize   = 1_000
	DefaultLogInterval = 10
)

// Options tunes a bulk run.
type Options struct {
	// BatchSize is the number of NULL rows loaded per transaction.
	BatchSize int

	// LogInterval logs progress every N batches.
	LogInterval int

	// CreateIndex builds a temporary partial index over NULL rows for the
	// duration of the run.
	CreateIndex bool
}

func (options Options) withDefaults() Options {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.LogInterval <= 0 {
		options.LogInterval = DefaultLogInterval
	}
	return options
}

// Report summarises a bulk run.
type Report struct {
	Passes   int           `json:"passes"`
	Batches  int           `json:"batches"`
	Assigned int64         `json:"assigned"`
	Stalled  int64         `json:"stalled"`
	Duration time.Duration `json:"duration"`
}

// # Reorderer

// Reorderer backfills NULL story orders in batches.
type Reorderer struct {
	store   storyindex.OrderStore
	options Options
	logger  *slog.Logger
}

// NewReorderer constructs a [Reorderer]. Zero options take the defaults.
func NewReorderer(store storyindex.OrderStore, options Options, logger *slog.Logger) *Reorderer {
	return &Reorderer{store: store, options: options.withDefaults(), logger: logger}
}

/*
Run orders every NULL tag instance it can.

Description: Each pass walks the NULL rows by id in batches of
Options.BatchSize, one transaction per batch. Passes repeat until no NULL
rows remain or a pass assigns nothing. Rows left over by a pass that made no
progress are reported as stalled (typically cyclic after references); they
are not an error and a later run retries them.

Returns:
  - Report: passes, batches, assigned and stalled counts
  - error: storage failures or a batch whose conflicts outlived its retries
*/
func (reorderer *Reorderer) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	report := Report{}

	if reorderer.options.CreateIndex {
		if err := reorderer.store.CreateBulkIndex(ctx); err != nil {
			return report, err
		}
		reorderer.logger.Info("bulk_index_created")

		defer func() {
			if err := reorderer.store.DropBulkIndex(context.WithoutCancel(ctx)); err != nil {
				reorderer.logger.Error("bulk_index_drop_failed", slog.Any("error", err))
				return
			}
			reorderer.logger.Info("bulk_index_dropped")
		}()
	}

	total, err := reorderer.store.CountPending(ctx)
	if err != nil {
		return report, err
	}
	reorderer.logger.Info("bulk_reorder_started",
		slog.Int64("pending", total),
		slog.Int("batch_size", reorderer.options.BatchSize),
	)

	remaining := total
	for remaining > 0 {
		report.Passes++

		assigned, err := reorderer.pass(ctx, &report, total, started)
		if err != nil {
			report.Duration = time.Since(started)
			return report, err
		}

		if remaining, err = reorderer.store.CountPending(ctx); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}

		if assigned == 0 {
			report.Stalled = remaining
			break
		}
	}

	report.Duration = time.Since(started)

	level := slog.LevelInfo
	if report.Stalled > 0 {
		level = slog.LevelWarn
	}
	reorderer.logger.Log(ctx, level, "bulk_reorder_finished",
		slog.Int("passes", report.Passes),
		slog.Int("batches", report.Batches),
		slog.Int64("assigned", report.Assigned),
		slog.Int64("stalled", report.Stalled),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// pass walks the NULL rows once and returns the number of rows it assigned.
func (reorderer *Reorderer) pass(ctx context.Context, report *Report, total int64, started time.Time) (int64, error) {
	var (
		cursor   *uuid.UUID
		assigned int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return assigned, err
		}

		batch, err := reorderer.store.PendingInstances(ctx, cursor, reorderer.options.BatchSize)
		if err != nil {
			return assigned, err
		}
		if len(batch) == 0 {
			return assigned, nil
		}
		last := batch[len(batch)-1].ID
		cursor = &last

		placed, err := reorderer.batchWithRetry(ctx, batch)
		if err != nil {
			return assigned, err
		}

		assigned += int64(placed)
		report.Assigned += int64(placed)
		report.Batches++

		metrics.BulkRowsTotal.WithLabelValues(metrics.OutcomeAssigned).Add(float64(placed))
		metrics.BulkRowsTotal.WithLabelValues(metrics.OutcomeDeferred).Add(float64(len(batch) - placed))

		if report.Batches%reorderer.options.LogInterval == 0 {
			reorderer.logProgress(report, total, started)
		}
	}
}

func (reorderer *Reorderer) logProgress(report *Report, total int64, started time.Time) {
	elapsed := time.Since(started)
	rate := float64(report.Assigned) / elapsed.Seconds()

	attrs := []any{
		slog.Int("pass", report.Passes),
		slog.Int("batches", report.Batches),
		slog.Int64("assigned", report.Assigned),
		slog.Int64("total", total),
		slog.Float64("rows_per_second", rate),
	}
	if left := total - report.Assigned; rate > 0 && left > 0 {
		attrs = append(attrs, slog.Duration("eta", time.Duration(float64(left)/rate*float64(time.Second))))
	}
	reorderer.logger.Info("bulk_reorder_progress", attrs...)
}

func (reorderer *Reorderer) batchWithRetry(ctx context.Context, batch []atlas.PendingInstance) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxConflictRetries; attempt++ {
		placed, err := reorderer.orderBatch(ctx, batch)
		if err == nil {
			return placed, nil
		}
		if !atlas.IsStoryOrderConflict(err) {
			return 0, err
		}
		metrics.BulkRowsTotal.WithLabelValues(metrics.OutcomeConflict).Add(float64(len(batch)))
		reorderer.logger.Warn("bulk_batch_conflict", slog.Int("attempt", attempt), slog.Int("rows", len(batch)))
		lastErr = err
	}
	return 0, fmt.Errorf("ordering: batch retries exhausted: %w", lastErr)
}

/*
orderBatch places one batch inside a single transaction.

Description: Rows are partitioned by tag and tags are locked in id order.
Within a partition rows are ranked by (has after, date, precision, sequence)
and placed on the tag's ladder. A row whose dependency is ordered later in
the same partition is revisited until a sweep places nothing new.

Returns:
  - int: the number of rows given an order
*/
func (reorderer *Reorderer) orderBatch(ctx context.Context, batch []atlas.PendingInstance) (int, error) {
	tags, partitions := slice.GroupBy(batch, func(instance atlas.PendingInstance) uuid.UUID { return instance.TagID })
	sort.Slice(tags, func(i, j int) bool { return bytes.Compare(tags[i][:], tags[j][:]) < 0 })

	placed := 0
	err := reorderer.store.InOrderTx(ctx, func(tx storyindex.OrderTx) error {
		placed = 0
		var updates []atlas.OrderUpdate

		for _, tagID := range tags {
			tagUpdates, count, err := reorderer.orderPartition(ctx, tx, tagID, partitions[tagID])
			if err != nil {
				return err
			}
			updates = append(updates, tagUpdates...)
			placed += count
		}
		return tx.ApplyOrders(ctx, updates)
	})
	if err != nil {
		return 0, err
	}
	return placed, nil
}

func (reorderer *Reorderer) orderPartition(ctx context.Context, tx storyindex.OrderTx, tagID uuid.UUID, rows []atlas.PendingInstance) ([]atlas.OrderUpdate, int, error) {
	if err := tx.LockTag(ctx, tagID); err != nil {
		return nil, 0, err
	}

	rungs, err := tx.Ladder(ctx, tagID)
	if err != nil {
		return nil, 0, err
	}
	ladder := NewLadder(tagID, rungs)

	var dependencies atlas.After
	for _, row := range rows {
		for _, summaryID := range row.After.IDs() {
			dependencies.Add(summaryID)
		}
	}
	resolved, err := tx.ResolveAfter(ctx, tagID, dependencies)
	if err != nil {
		return nil, 0, err
	}

	rankRows(rows)

	// Final order per instance, including rungs moved by a renumber.
	orders := make(map[uuid.UUID]int64)
	var sequence []uuid.UUID
	placed := 0

	pending := rows
	for len(pending) > 0 {
		var deferred []atlas.PendingInstance

		for _, row := range pending {
			maxDep, err := MaxDependency(row.After, resolved, row.SummaryID)
			if errors.Is(err, atlas.ErrUnorderable) {
				deferred = append(deferred, row)
				continue
			}

			slot, err := ladder.Slot(row.Date, maxDep)
			if err != nil {
				return nil, 0, err
			}

			if len(slot.Rebalanced) > 0 {
				metrics.LadderRebalancesTotal.Inc()
				for _, update := range slot.Rebalanced {
					if _, seen := orders[update.InstanceID]; !seen {
						sequence = append(sequence, update.InstanceID)
					}
					orders[update.InstanceID] = update.Order
				}
				for summaryID, order := range resolved {
					resolved[summaryID] = remapOrder(order, slot.Remap)
				}
			}

			order := slot.Order
			ladder.Insert(atlas.Rung{InstanceID: row.ID, SummaryID: row.SummaryID, Order: order, Date: row.Date})
			if _, seen := orders[row.ID]; !seen {
				sequence = append(sequence, row.ID)
			}
			orders[row.ID] = order
			if _, referenced := resolved[row.SummaryID]; referenced {
				resolved[row.SummaryID] = &order
			}
			placed++
		}

		if len(deferred) == len(pending) {
			break
		}
		pending = deferred
	}

	updates := make([]atlas.OrderUpdate, 0, len(sequence))
	for _, instanceID := range sequence {
		updates = append(updates, atlas.OrderUpdate{InstanceID: instanceID, TagID: tagID, Order: orders[instanceID]})
	}
	return updates, placed, nil
}

// rankRows sorts a partition by (has after, date, precision, sequence).
// Undated rows sort after dated ones; the stable sort keeps id order as the
// sequence tie-break.
func rankRows(rows []atlas.PendingInstance) {
	sort.SliceStable(rows, func(i, j int) bool {
		left, right := !rows[i].After.Empty(), !rows[j].After.Empty()
		if left != right {
			return !left
		}
		return chrono.CompareOptional(rows[i].Date, rows[j].Date) < 0
	})
}
