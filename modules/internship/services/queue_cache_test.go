package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/preference"
)

func TestMemoryQueueCache(t *testing.T) {
	ctx := context.Background()
	periodA, periodB := uuid.New(), uuid.New()
	entries := []QueueEntry{{StudentID: uuid.New(), GPA: decimal.RequireFromString("3.5"), Ranks: []RankStatus{{Rank: 1}}}}

	t.Run("set and get clones", func(t *testing.T) {
		c := NewMemoryQueueCache(time.Minute)
		c.Set(ctx, periodA, "k", c.Version(ctx, periodA), entries)
		got, ok := c.Get(ctx, periodA, "k")
		require.True(t, ok)
		require.Equal(t, entries, got)

		got[0].Ranks[0].Rank = 9
		again, _ := c.Get(ctx, periodA, "k")
		require.Equal(t, 1, again[0].Ranks[0].Rank)
	})

	t.Run("invalidate is scoped to the period", func(t *testing.T) {
		c := NewMemoryQueueCache(time.Minute)
		c.Set(ctx, periodA, "k1", 0, entries)
		c.Set(ctx, periodA, "k2", 0, entries)
		c.Set(ctx, periodB, "k1", 0, entries)

		c.InvalidatePeriod(ctx, periodA)
		_, ok := c.Get(ctx, periodA, "k1")
		require.False(t, ok)
		_, ok = c.Get(ctx, periodA, "k2")
		require.False(t, ok)
		_, ok = c.Get(ctx, periodB, "k1")
		require.True(t, ok)
	})

	t.Run("expired entries miss", func(t *testing.T) {
		c := NewMemoryQueueCache(time.Nanosecond)
		c.Set(ctx, periodA, "k", 0, entries)
		time.Sleep(time.Millisecond)
		_, ok := c.Get(ctx, periodA, "k")
		require.False(t, ok)
	})

	t.Run("set with a stale version is dropped", func(t *testing.T) {
		c := NewMemoryQueueCache(time.Minute)
		stale := c.Version(ctx, periodA)
		c.InvalidatePeriod(ctx, periodA)
		require.Equal(t, stale+1, c.Version(ctx, periodA))

		c.Set(ctx, periodA, "k", stale, entries)
		_, ok := c.Get(ctx, periodA, "k")
		require.False(t, ok)

		c.Set(ctx, periodA, "k", c.Version(ctx, periodA), entries)
		_, ok = c.Get(ctx, periodA, "k")
		require.True(t, ok)
		require.Zero(t, c.Version(ctx, periodB))
	})

	t.Run("noop never hits", func(t *testing.T) {
		c := NewNoopQueueCache()
		c.Set(ctx, periodA, "k", 0, entries)
		_, ok := c.Get(ctx, periodA, "k")
		require.False(t, ok)
	})
}

func TestQueueFilter(t *testing.T) {
	org := uuid.New()
	yes := true
	minGPA := decimal.RequireFromString("3.0")
	entry := QueueEntry{
		GPA:     decimal.RequireFromString("3.2"),
		HasNote: true,
		Outcome: preference.OutcomeUndecided,
		Ranks:   []RankStatus{{Rank: 1, OrganizationID: org}},
	}

	require.True(t, QueueFilter{}.matches(entry))
	require.False(t, QueueFilter{Outcome: "academy"}.matches(entry))
	require.True(t, QueueFilter{Outcome: OutcomeAll}.matches(entry))
	require.True(t, QueueFilter{OrganizationID: &org, HasNote: &yes, MinGPA: &minGPA}.matches(entry))

	other := uuid.New()
	require.False(t, QueueFilter{OrganizationID: &other}.matches(entry))

	high := decimal.RequireFromString("3.5")
	require.False(t, QueueFilter{MinGPA: &high}.matches(entry))

	require.Error(t, QueueFilter{Outcome: "placed"}.validate())
	require.Error(t, QueueFilter{Limit: -1}.validate())
	require.NoError(t, QueueFilter{Outcome: "ALL"}.validate())

	require.Equal(t, QueueFilter{Limit: 1}.cacheKey(), QueueFilter{Offset: 3}.cacheKey())
	require.NotEqual(t, QueueFilter{}.cacheKey(), QueueFilter{HasNote: &yes}.cacheKey())
	require.Equal(t, QueueFilter{Name: " Ana "}.cacheKey(), QueueFilter{Name: "ana"}.cacheKey())
}

func TestQueueFilterName(t *testing.T) {
	entry := QueueEntry{FullName: "Zoë Martínez", Outcome: preference.OutcomeUndecided}

	require.True(t, QueueFilter{Name: "zoe"}.matches(entry))
	require.True(t, QueueFilter{Name: "MARTINEZ"}.matches(entry))
	require.True(t, QueueFilter{Name: "zmtz"}.matches(entry))
	require.True(t, QueueFilter{Name: "  "}.matches(entry))
	require.False(t, QueueFilter{Name: "zara"}.matches(entry))
	require.False(t, QueueFilter{Name: "zoe"}.matches(QueueEntry{Outcome: preference.OutcomeUndecided}))
}

func TestSortQueue(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	a := QueueEntry{StudentID: uuid.New(), GPA: decimal.RequireFromString("3.8"), SubmittedAt: at(10, 0)}
	b := QueueEntry{StudentID: uuid.New(), GPA: decimal.RequireFromString("3.9"), SubmittedAt: at(9, 0)}
	c := QueueEntry{StudentID: uuid.New(), GPA: decimal.RequireFromString("3.80"), SubmittedAt: at(9, 30)}

	entries := []QueueEntry{a, b, c}
	SortQueue(entries)
	require.Equal(t, []uuid.UUID{b.StudentID, c.StudentID, a.StudentID},
		[]uuid.UUID{entries[0].StudentID, entries[1].StudentID, entries[2].StudentID})
}

func TestPage(t *testing.T) {
	entries := make([]QueueEntry, 5)
	require.Len(t, page(entries, 0, 0), 5)
	require.Len(t, page(entries, 1, 2), 2)
	require.Len(t, page(entries, 4, 10), 1)
	require.Empty(t, page(entries, 5, 1))
}
