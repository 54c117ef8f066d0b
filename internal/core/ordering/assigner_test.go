// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ordering_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/core/storyindex/indextest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fixture tracks the instances of one tag created by a test.
type fixture struct {
	*indextest.Builder
	tag   uuid.UUID
	years map[int]uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	builder := indextest.New(t)
	return &fixture{Builder: builder, tag: builder.Person("Subject"), years: map[int]uuid.UUID{}}
}

// dated creates a summary mentioning the subject (after the given summaries)
// and, when y is non-zero, a year tag. It returns the summary and the
// subject's instance.
func (f *fixture) dated(y int, after ...uuid.UUID) (uuid.UUID, uuid.UUID) {
	summary := f.Summary("event")
	instance := f.Mention(summary, f.tag, after...)
	if y != 0 {
		timeTag, ok := f.years[y]
		if !ok {
			timeTag = f.Year(y)
			f.years[y] = timeTag
		}
		f.Mention(summary, timeTag)
	}
	return summary, instance
}

func (f *fixture) order(t *testing.T, instance uuid.UUID) int64 {
	t.Helper()
	order := f.StoryOrder(instance)
	require.NotNil(t, order, "instance %s is unordered", instance)
	return *order
}

/*
TestAssigner_Scenarios verifies the date and dependency scenarios A, B and C.
*/
func TestAssigner_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("dependency and date agree", func(t *testing.T) {
		f := newFixture(t)
		assigner := ordering.NewAssigner(f.Index, discard)

		summaryA, a := f.dated(1990)
		_, b := f.dated(1995, summaryA)
		_, c := f.dated(2000)

		for _, instance := range []uuid.UUID{a, b, c} {
			_, err := assigner.Assign(ctx, instance)
			require.NoError(t, err)
		}

		assert.Less(t, f.order(t, a), f.order(t, b))
		assert.Less(t, f.order(t, b), f.order(t, c))
	})

	t.Run("later date inserted first still follows", func(t *testing.T) {
		f := newFixture(t)
		assigner := ordering.NewAssigner(f.Index, discard)

		summaryA, a := f.dated(1990)
		_, c := f.dated(2000)
		_, b := f.dated(1995, summaryA)

		for _, instance := range []uuid.UUID{a, c, b} {
			_, err := assigner.Assign(ctx, instance)
			require.NoError(t, err)
		}

		assert.Less(t, f.order(t, a), f.order(t, b))
		assert.Less(t, f.order(t, b), f.order(t, c))
	})

	t.Run("dependency beats an earlier date", func(t *testing.T) {
		f := newFixture(t)
		assigner := ordering.NewAssigner(f.Index, discard)

		summaryA, a := f.dated(2000)
		_, b := f.dated(1950, summaryA)

		_, err := assigner.Assign(ctx, a)
		require.NoError(t, err)
		order, err := assigner.Assign(ctx, b)
		require.NoError(t, err)

		assert.Equal(t, f.order(t, a)+ordering.DependencyOffset, order)
	})
}

/*
TestAssigner_SharedDependency verifies that instances following the same
summary keep date order among themselves for either arrival sequence.
*/
func TestAssigner_SharedDependency(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		earlyFirst bool
	}{
		{"earlier dependent first", true},
		{"later dependent first", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			assigner := ordering.NewAssigner(f.Index, discard)

			summaryA, a := f.dated(1990)
			_, b := f.dated(1995)
			_, d1980 := f.dated(1980, summaryA)
			_, d1985 := f.dated(1985, summaryA)

			sequence := []uuid.UUID{a, b, d1980, d1985}
			if !tt.earlyFirst {
				sequence = []uuid.UUID{a, b, d1985, d1980}
			}
			for _, instance := range sequence {
				_, err := assigner.Assign(ctx, instance)
				require.NoError(t, err)
			}

			assert.Less(t, f.order(t, a), f.order(t, d1980))
			assert.Less(t, f.order(t, d1980), f.order(t, d1985))
			assert.Less(t, f.order(t, d1985), f.order(t, b))
		})
	}
}

/*
TestAssigner_Deferred verifies that an unordered dependency leaves the row NULL.
*/
func TestAssigner_Deferred(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assigner := ordering.NewAssigner(f.Index, discard)

	summaryA, _ := f.dated(1990)
	_, b := f.dated(1995, summaryA)

	_, err := assigner.Assign(ctx, b)
	assert.ErrorIs(t, err, atlas.ErrUnorderable)
	assert.Nil(t, f.StoryOrder(b))
}

/*
TestAssigner_Idempotent verifies that an ordered instance keeps its order.
*/
func TestAssigner_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assigner := ordering.NewAssigner(f.Index, discard)
	_, a := f.dated(1990)

	first, err := assigner.Assign(ctx, a)
	require.NoError(t, err)
	second, err := assigner.Assign(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, ordering.DefaultBase, first)
	assert.Equal(t, first, second)
}

/*
TestAssigner_ConflictRetry verifies retry on uniqueness conflicts.
*/
func TestAssigner_ConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers within the retry budget", func(t *testing.T) {
		f := newFixture(t)
		assigner := ordering.NewAssigner(f.Index, discard)
		_, a := f.dated(1990)

		f.Index.InjectConflicts(ordering.MaxConflictRetries - 1)
		order, err := assigner.Assign(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, order, f.order(t, a))
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		f := newFixture(t)
		assigner := ordering.NewAssigner(f.Index, discard)
		_, a := f.dated(1990)

		f.Index.InjectConflicts(ordering.MaxConflictRetries)
		_, err := assigner.Assign(ctx, a)
		require.Error(t, err)
		assert.True(t, atlas.IsStoryOrderConflict(err))
		assert.Nil(t, f.StoryOrder(a))
	})
}

/*
TestAssigner_Rebalance verifies that an exhausted gap renumbers the tag.
*/
func TestAssigner_Rebalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assigner := ordering.NewAssigner(f.Index, discard)

	_, early := f.dated(1990)
	_, late := f.dated(1992)
	f.Order(map[uuid.UUID]int64{early: 10, late: 11})

	_, middle := f.dated(1991)
	order, err := assigner.Assign(ctx, middle)
	require.NoError(t, err)

	assert.Equal(t, ordering.DefaultBase, f.order(t, early))
	assert.Equal(t, ordering.DefaultBase+ordering.Spacing, f.order(t, late))
	assert.Equal(t, ordering.DefaultBase+ordering.Spacing/2, order)
}

/*
TestAssigner_Monotonicity verifies that orders follow dates for any insertion
sequence and stay unique.
*/
func TestAssigner_Monotonicity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assigner := ordering.NewAssigner(f.Index, discard)

	const n = 40
	byYear := make(map[int]uuid.UUID, n)
	for i := range n {
		// A fixed permutation of 0..n-1 so inserts arrive out of date order.
		y := 1800 + (i*17)%n
		_, instance := f.dated(y)
		byYear[y] = instance
		_, err := assigner.Assign(ctx, instance)
		require.NoError(t, err)
	}

	years := make([]int, 0, n)
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	seen := map[int64]bool{}
	previous := int64(-1)
	for _, y := range years {
		order := f.order(t, byYear[y])
		assert.Greater(t, order, previous, "year %d", y)
		assert.False(t, seen[order])
		seen[order] = true
		previous = order
	}
}
