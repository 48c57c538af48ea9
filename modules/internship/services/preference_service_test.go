package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/services"
)

func TestSubmitPreferences(t *testing.T) {
	f := newFixture(t)
	o1 := f.enroll(t, capacity.KindEnterprise, 1)
	o2 := f.enroll(t, capacity.KindEnterprise, 1)
	s := f.student(t, "Sub", "3.3")

	choices := []preference.Choice{{Rank: 2, OrganizationID: o2}, {Rank: 1, OrganizationID: o1}}
	prefs, err := f.preferences.Submit(f.ctx, s, f.period.ID, choices, "  relocating  ")
	require.NoError(t, err)
	require.Equal(t, o1, prefs[0].OrganizationID)
	require.Equal(t, 2, prefs[1].Rank)
	for _, p := range prefs {
		require.True(t, p.Pending())
	}

	batch, err := f.preferences.Batch(f.ctx, s, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, "relocating", batch.Note)
	require.Equal(t, preference.OutcomeUndecided, batch.Outcome)
	require.Contains(t, f.changeTypes(), events.ChangeSubmitted)

	_, err = f.preferences.Submit(f.ctx, s, f.period.ID, preference.ChoicesFromRanked([]uuid.UUID{o1}), "")
	require.ErrorIs(t, err, services.ErrDuplicateSubmission)
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	o1 := f.enroll(t, capacity.KindEnterprise, 1)
	o2 := f.enroll(t, capacity.KindEnterprise, 1)
	s := f.student(t, "Val", "3.0")

	cases := []struct {
		name    string
		choices []preference.Choice
		want    *services.ServiceError
	}{
		{"empty", nil, services.ErrInvalidRankSequence},
		{"gap", []preference.Choice{{Rank: 1, OrganizationID: o1}, {Rank: 3, OrganizationID: o2}}, services.ErrInvalidRankSequence},
		{"starts at two", []preference.Choice{{Rank: 2, OrganizationID: o1}}, services.ErrInvalidRankSequence},
		{"same organization twice", preference.ChoicesFromRanked([]uuid.UUID{o1, o1}), services.ErrInvalidRankSequence},
		{"too many", preference.ChoicesFromRanked([]uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}), services.ErrInvalidRankSequence},
		{"organization not enrolled", preference.ChoicesFromRanked([]uuid.UUID{o1, uuid.New()}), services.ErrNotEnrolled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.preferences.Submit(f.ctx, s, f.period.ID, tc.choices, "")
			require.ErrorIs(t, err, tc.want)
		})
	}

	prefs, err := f.preferences.ListFor(f.ctx, s, f.period.ID)
	require.NoError(t, err)
	require.Empty(t, prefs)

	_, err = f.preferences.Submit(f.ctx, uuid.New(), f.period.ID, preference.ChoicesFromRanked([]uuid.UUID{o1}), "")
	require.ErrorIs(t, err, services.ErrGuideRequired)

	_, err = f.preferences.Batch(f.ctx, uuid.New(), f.period.ID)
	require.ErrorIs(t, err, services.ErrNotFound)

	_, err = f.periods.Close(f.ctx, f.period.ID, f.clock.Now())
	require.NoError(t, err)
	_, err = f.preferences.Submit(f.ctx, s, f.period.ID, preference.ChoicesFromRanked([]uuid.UUID{o1}), "")
	require.ErrorIs(t, err, services.ErrPeriodClosed)
}

func TestMaxRanksIsClamped(t *testing.T) {
	f := newFixture(t)
	repos := f.store.Repositories()
	require.Equal(t, 5, services.NewPreferenceService(repos, f.periods, 9, nil).MaxRanks())
	require.Equal(t, 5, services.NewPreferenceService(repos, f.periods, 0, nil).MaxRanks())
	require.Equal(t, 3, services.NewPreferenceService(repos, f.periods, 3, nil).MaxRanks())
}
