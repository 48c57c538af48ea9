package preference

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChoices(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	cases := []struct {
		name    string
		choices []Choice
		max     int
		wantErr bool
	}{
		{name: "empty", choices: nil, max: 5, wantErr: true},
		{name: "single", choices: []Choice{{Rank: 1, OrganizationID: a}}, max: 5},
		{name: "unordered but contiguous", choices: []Choice{{Rank: 2, OrganizationID: b}, {Rank: 1, OrganizationID: a}, {Rank: 3, OrganizationID: c}}, max: 5},
		{name: "starts at two", choices: []Choice{{Rank: 2, OrganizationID: a}}, max: 5, wantErr: true},
		{name: "gap", choices: []Choice{{Rank: 1, OrganizationID: a}, {Rank: 3, OrganizationID: b}}, max: 5, wantErr: true},
		{name: "duplicate rank", choices: []Choice{{Rank: 1, OrganizationID: a}, {Rank: 1, OrganizationID: b}}, max: 5, wantErr: true},
		{name: "duplicate organization", choices: []Choice{{Rank: 1, OrganizationID: a}, {Rank: 2, OrganizationID: a}}, max: 5, wantErr: true},
		{name: "nil organization", choices: []Choice{{Rank: 1}}, max: 5, wantErr: true},
		{name: "over max", choices: ChoicesFromRanked([]uuid.UUID{a, b, c}), max: 2, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeChoices(tc.choices, tc.max)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidRankSequence)
				return
			}
			require.NoError(t, err)
			for i, c := range got {
				require.Equal(t, i+1, c.Rank)
			}
		})
	}
}

func TestNewBatch(t *testing.T) {
	student, period := uuid.New(), uuid.New()
	now := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)

	b, prefs := NewBatch(student, period, ChoicesFromRanked([]uuid.UUID{uuid.New(), uuid.New()}), "  remote only ", now)
	require.Equal(t, OutcomeUndecided, b.Outcome)
	require.Equal(t, "remote only", b.Note)
	require.True(t, b.HasNote())
	require.False(t, b.Decided())
	require.Len(t, prefs, 2)
	for _, p := range prefs {
		require.True(t, p.Pending())
		require.Equal(t, now, p.CreatedAt)
		require.Equal(t, "remote only", p.Note)
	}
}
