// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ordering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/metrics"
)

// # Assigner

// Assigner orders newly inserted tag instances one at a time.
type Assigner struct {
	store  storyindex.OrderStore
	logger *slog.Logger
}

// NewAssigner constructs an [Assigner] over the order store.
func NewAssigner(store storyindex.OrderStore, logger *slog.Logger) *Assigner {
	return &Assigner{store: store, logger: logger}
}

/*
Assign gives a NULL-order tag instance its story order.

Description: Runs in one order transaction that locks the tag, loads its
ladder, resolves the instance's after references and writes the new order
(plus any renumbered rungs). A uniqueness conflict at commit reloads the
ladder and retries, up to [MaxConflictRetries] times. An instance that is
already ordered is returned unchanged.

Parameters:
  - context: context.Context
  - instanceID: uuid.UUID

Returns:
  - int64: the assigned order
  - error: [atlas.ErrUnorderable] when a dependency is still unordered; the
    row stays NULL for the bulk reorderer
*/
func (assigner *Assigner) Assign(context context.Context, instanceID uuid.UUID) (int64, error) {
	var lastErr error

	for attempt := 1; attempt <= MaxConflictRetries; attempt++ {
		order, err := assigner.assignOnce(context, instanceID)
		switch {
		case err == nil:
			metrics.StoryOrdersTotal.WithLabelValues(metrics.OutcomeAssigned).Inc()
			return order, nil

		case errors.Is(err, atlas.ErrUnorderable):
			metrics.StoryOrdersTotal.WithLabelValues(metrics.OutcomeDeferred).Inc()
			assigner.logger.Debug("story_order_deferred", slog.String("instance_id", instanceID.String()))
			return 0, err

		case atlas.IsStoryOrderConflict(err):
			metrics.StoryOrdersTotal.WithLabelValues(metrics.OutcomeConflict).Inc()
			assigner.logger.Warn("story_order_conflict",
				slog.String("instance_id", instanceID.String()),
				slog.Int("attempt", attempt),
			)
			lastErr = err

		default:
			metrics.StoryOrdersTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return 0, err
		}
	}

	metrics.StoryOrdersTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	return 0, fmt.Errorf("ordering: instance %s: retries exhausted: %w", instanceID, lastErr)
}

func (assigner *Assigner) assignOnce(context context.Context, instanceID uuid.UUID) (int64, error) {
	var assigned int64

	err := assigner.store.InOrderTx(context, func(tx storyindex.OrderTx) error {
		instance, date, err := tx.LoadInstance(context, instanceID)
		if err != nil {
			return err
		}
		if instance.Ordered() {
			assigned = *instance.StoryOrder
			return nil
		}

		if err := tx.LockTag(context, instance.TagID); err != nil {
			return err
		}

		rungs, err := tx.Ladder(context, instance.TagID)
		if err != nil {
			return err
		}

		resolved, err := tx.ResolveAfter(context, instance.TagID, instance.After)
		if err != nil {
			return err
		}

		maxDep, err := MaxDependency(instance.After, resolved, instance.SummaryID)
		if err != nil {
			return err
		}

		slot, err := NewLadder(instance.TagID, rungs).Slot(date, maxDep)
		if err != nil {
			return err
		}

		if len(slot.Rebalanced) > 0 {
			metrics.LadderRebalancesTotal.Inc()
			assigner.logger.Info("story_ladder_rebalanced",
				slog.String("tag_id", instance.TagID.String()),
				slog.Int("rungs", len(rungs)),
			)
			if err := tx.ApplyOrders(context, slot.Rebalanced); err != nil {
				return err
			}
		}

		if err := tx.UpdateStoryOrder(context, instance.ID, slot.Order); err != nil {
			return err
		}

		assigned = slot.Order
		return nil
	})
	if err != nil {
		return 0, err
	}

	assigner.logger.Debug("story_order_assigned",
		slog.String("instance_id", instanceID.String()),
		slog.Int64("story_order", assigned),
	)
	return assigned, nil
}
