// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ordering assigns story orders to tag instances.

Every tag owns a ladder: its ordered instances sorted by story_order. Orders
are sparse integers so a new instance usually lands in the gap between two
neighbours. When a gap is exhausted the whole ladder is renumbered to
[DefaultBase] + rank*[Spacing] inside the same transaction and the placement
is recomputed, so a placement is always strictly between two distinct
integers or follows a renumber that restored full spacing.

The [Assigner] places one instance synchronously at ingestion time. The
[Reorderer] backfills NULL orders in batches and shares the same ladder.
*/
package ordering

import (
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
)

// # Placement Constants

const (
	// DefaultBase is the order given to the first instance of an empty ladder.
	DefaultBase int64 = 100_000

	// Spacing separates consecutive rungs after a renumber or an append.
	Spacing int64 = 1_000

	// DependencyOffset is added beyond the highest dependency order when an
	// instance is appended after its dependencies.
	DependencyOffset int64 = 1_000

	// MaxConflictRetries bounds the retries after a uniqueness conflict.
	MaxConflictRetries = 5
)

// # Ladder

// Ladder is the in-memory view of one tag's ordered instances.
type Ladder struct {
	tagID uuid.UUID
	rungs []atlas.Rung
}

// NewLadder copies rungs into a ladder sorted by order.
func NewLadder(tagID uuid.UUID, rungs []atlas.Rung) *Ladder {
	ladder := &Ladder{tagID: tagID, rungs: append([]atlas.Rung(nil), rungs...)}
	sort.Slice(ladder.rungs, func(i, j int) bool { return ladder.rungs[i].Order < ladder.rungs[j].Order })
	return ladder
}

// Len returns the number of rungs.
func (ladder *Ladder) Len() int { return len(ladder.rungs) }

// Orders returns the orders of every rung, ascending.
func (ladder *Ladder) Orders() []int64 {
	orders := make([]int64, len(ladder.rungs))
	for i, rung := range ladder.rungs {
		orders[i] = rung.Order
	}
	return orders
}

/*
Place computes the order of a new instance.

Description: The instance goes before the first rung whose date is strictly
later than date (undated rungs count as latest), so equal dates keep their
insertion sequence and an undated instance goes to the end. The rung before
that position is the lower bound L, raised to maxDep when a dependency sits
at or above it. From a dependency bound, L then moves past every following
rung dated no later than date. U is the first rung above L.

Returns:
  - int64: the new order
  - bool: false when no integer is free between L and U; call [Ladder.Rebalance]
*/
func (ladder *Ladder) Place(date *chrono.Date, maxDep *int64) (int64, bool) {
	position := len(ladder.rungs)
	if date != nil {
		for i, rung := range ladder.rungs {
			if chrono.CompareOptional(rung.Date, date) > 0 {
				position = i
				break
			}
		}
	}

	var (
		lower    *int64
		fromDeps bool
	)
	if position > 0 {
		order := ladder.rungs[position-1].Order
		lower = &order
	}
	if maxDep != nil && (lower == nil || *maxDep >= *lower) {
		order := *maxDep
		lower, fromDeps = &order, true
	}

	index := 0
	if lower != nil {
		index = sort.Search(len(ladder.rungs), func(i int) bool { return ladder.rungs[i].Order > *lower })
	}

	// Rungs past a dependency bound still follow dates: step over those
	// dated no later than the new instance.
	if fromDeps {
		for index < len(ladder.rungs) && chrono.CompareOptional(ladder.rungs[index].Date, date) <= 0 {
			order := ladder.rungs[index].Order
			lower, fromDeps = &order, false
			index++
		}
	}

	var upper *int64
	if index < len(ladder.rungs) {
		upper = &ladder.rungs[index].Order
	}

	switch {
	case lower == nil && upper == nil:
		return DefaultBase, true

	case upper == nil:
		step := Spacing
		if fromDeps {
			step = DependencyOffset
		}
		if *lower > math.MaxInt64-step {
			return 0, false
		}
		return *lower + step, true

	case lower == nil:
		if *upper-Spacing > 0 {
			return *upper - Spacing, true
		}
		if *upper >= 2 {
			return *upper / 2, true
		}
		return 0, false

	case *upper-*lower >= 2:
		return *lower + (*upper-*lower)/2, true
	}
	return 0, false
}

// Insert adds a placed instance to the ladder.
func (ladder *Ladder) Insert(rung atlas.Rung) {
	index := sort.Search(len(ladder.rungs), func(i int) bool { return ladder.rungs[i].Order >= rung.Order })
	ladder.rungs = append(ladder.rungs, atlas.Rung{})
	copy(ladder.rungs[index+1:], ladder.rungs[index:])
	ladder.rungs[index] = rung
}

/*
Rebalance renumbers the ladder to DefaultBase + rank*Spacing, keeping the
relative order of every rung.

Returns:
  - []atlas.OrderUpdate: the rungs whose order changed
  - map[int64]int64: old order to new order, for every rung
*/
func (ladder *Ladder) Rebalance() ([]atlas.OrderUpdate, map[int64]int64) {
	var updates []atlas.OrderUpdate
	remap := make(map[int64]int64, len(ladder.rungs))

	for rank := range ladder.rungs {
		rung := &ladder.rungs[rank]
		next := DefaultBase + int64(rank)*Spacing
		remap[rung.Order] = next
		if rung.Order != next {
			updates = append(updates, atlas.OrderUpdate{InstanceID: rung.InstanceID, TagID: ladder.tagID, Order: next})
			rung.Order = next
		}
	}
	return updates, remap
}

// Slot is the outcome of placing one instance.
type Slot struct {
	Order int64

	// Rebalanced is non-empty when the ladder had to be renumbered first.
	// These updates must be written along with Order.
	Rebalanced []atlas.OrderUpdate
	Remap      map[int64]int64
}

// Slot places an instance, renumbering the ladder once when its gap is
// exhausted. maxDep is an order read before the call and is remapped on a
// renumber.
func (ladder *Ladder) Slot(date *chrono.Date, maxDep *int64) (Slot, error) {
	if order, ok := ladder.Place(date, maxDep); ok {
		return Slot{Order: order}, nil
	}

	updates, remap := ladder.Rebalance()
	order, ok := ladder.Place(date, remapOrder(maxDep, remap))
	if !ok {
		return Slot{}, errExhausted
	}
	return Slot{Order: order, Rebalanced: updates, Remap: remap}, nil
}

// # Dependencies

/*
MaxDependency reduces resolved after references to the highest order the
instance must follow.

Description: resolved maps each referenced summary holding an instance of
the same tag to that instance's order. References absent from resolved have
no same-tag instance and are ignored, as is a reference to the instance's
own summary.

Returns:
  - *int64: the highest dependency order, nil when there is none
  - error: [atlas.ErrUnorderable] when a dependency is still unordered
*/
func MaxDependency(after atlas.After, resolved map[uuid.UUID]*int64, self uuid.UUID) (*int64, error) {
	var highest *int64
	for _, summaryID := range after.IDs() {
		if summaryID == self {
			continue
		}
		order, ok := resolved[summaryID]
		if !ok {
			continue
		}
		if order == nil {
			return nil, atlas.ErrUnorderable
		}
		if highest == nil || *order > *highest {
			value := *order
			highest = &value
		}
	}
	return highest, nil
}

// remapOrder follows a rebalance for a previously read order.
func remapOrder(order *int64, remap map[int64]int64) *int64 {
	if order == nil {
		return nil
	}
	if next, ok := remap[*order]; ok {
		return &next
	}
	return order
}

// errExhausted reports a gap that stayed closed after a renumber.
var errExhausted = errors.New("ordering: no free order after rebalance")
