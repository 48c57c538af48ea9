package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fit-portal/placement/modules/internship/domain/preference"
)

type RankStatus struct {
	Rank           int               `json:"rank"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	PreferenceID   uuid.UUID         `json:"preference_id"`
	Status         preference.Status `json:"status"`
}

// QueueEntry is one student summary in the review queue.
type QueueEntry struct {
	StudentID   uuid.UUID          `json:"student_id"`
	FullName    string             `json:"full_name"`
	GPA         decimal.Decimal    `json:"gpa"`
	SubmittedAt time.Time          `json:"submitted_at"`
	HasNote     bool               `json:"has_note"`
	Outcome     preference.Outcome `json:"outcome"`
	Ranks       []RankStatus       `json:"ranks"`
}

// OutcomeAll disables outcome filtering.
const OutcomeAll = "all"

type QueueFilter struct {
	// Outcome is undecided (default), organization, academy or all.
	Outcome        string
	OrganizationID *uuid.UUID
	HasNote        *bool
	MinGPA         *decimal.Decimal
	// Name keeps students whose full name contains its letters in order,
	// ignoring case and diacritics.
	Name           string
	Limit          int
	Offset         int
}

// cacheKey ignores paging; the cache holds the full filtered order.
func (f QueueFilter) cacheKey() string {
	var b strings.Builder
	b.WriteString("outcome=")
	b.WriteString(f.normalizedOutcome())
	if f.OrganizationID != nil {
		b.WriteString("&org=")
		b.WriteString(f.OrganizationID.String())
	}
	if f.HasNote != nil {
		fmt.Fprintf(&b, "&note=%t", *f.HasNote)
	}
	if f.MinGPA != nil {
		b.WriteString("&min_gpa=")
		b.WriteString(f.MinGPA.String())
	}
	if name := f.normalizedName(); name != "" {
		b.WriteString("&name=")
		b.WriteString(name)
	}
	return b.String()
}

func (f QueueFilter) normalizedOutcome() string {
	o := strings.ToLower(strings.TrimSpace(f.Outcome))
	if o == "" {
		return string(preference.OutcomeUndecided)
	}
	return o
}

func (f QueueFilter) normalizedName() string {
	return strings.ToLower(strings.TrimSpace(f.Name))
}

func (f QueueFilter) validate() error {
	o := f.normalizedOutcome()
	if _, ok := preference.ParseOutcome(o); !ok && o != OutcomeAll {
		return failf(ErrInvalidBody, "unknown outcome filter %q", f.Outcome)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return fail(ErrInvalidBody, "limit and offset must be non-negative", nil)
	}
	return nil
}

func (f QueueFilter) matches(e QueueEntry) bool {
	if o := f.normalizedOutcome(); o != OutcomeAll && string(e.Outcome) != o {
		return false
	}
	if f.HasNote != nil && e.HasNote != *f.HasNote {
		return false
	}
	if f.MinGPA != nil && e.GPA.LessThan(*f.MinGPA) {
		return false
	}
	if name := f.normalizedName(); name != "" && !fuzzy.MatchNormalizedFold(name, e.FullName) {
		return false
	}
	if f.OrganizationID != nil {
		found := false
		for _, r := range e.Ranks {
			if r.OrganizationID == *f.OrganizationID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SortQueue orders by GPA descending, then earliest submission, then student
// id so the order is total.
func SortQueue(entries []QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.GPA.Cmp(b.GPA); c != 0 {
			return c > 0
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return strings.Compare(a.StudentID.String(), b.StudentID.String()) < 0
	})
}

type ReviewQueueService struct {
	tx          Transactor
	preferences PreferenceRepository
	students    StudentDirectory
	cache       QueueCache
}

func NewReviewQueueService(repos Repositories, cache QueueCache) *ReviewQueueService {
	if cache == nil {
		cache = NewNoopQueueCache()
	}
	return &ReviewQueueService{tx: repos.Tx, preferences: repos.Preferences, students: repos.Students, cache: cache}
}

// Rank returns the advisory review order for a period. It never mutates.
func (s *ReviewQueueService) Rank(ctx context.Context, periodID uuid.UUID, filter QueueFilter) (out []QueueEntry, err error) {
	ctx, span := startSpan(ctx, "queue.rank", attribute.String("period_id", periodID.String()))
	defer func() { endSpan(span, err) }()

	if err := filter.validate(); err != nil {
		return nil, err
	}

	key := filter.cacheKey()
	entries, hit := s.cache.Get(ctx, periodID, key)
	recordQueueCacheRequest(hit)
	if !hit {
		// Read before projecting: an invalidation racing the build makes
		// the Set below a no-op.
		version := s.cache.Version(ctx, periodID)
		all, err := s.project(ctx, periodID)
		if err != nil {
			return nil, err
		}
		entries = make([]QueueEntry, 0, len(all))
		for _, e := range all {
			if filter.matches(e) {
				entries = append(entries, e)
			}
		}
		SortQueue(entries)
		s.cache.Set(ctx, periodID, key, version, entries)
	}
	return page(entries, filter.Offset, filter.Limit), nil
}

// readPeriod loads batches and rows in one unit of work so outcomes and
// statuses agree.
func (s *ReviewQueueService) readPeriod(ctx context.Context, periodID uuid.UUID) (batches []preference.Batch, prefs []preference.Preference, err error) {
	read := func(txCtx context.Context) error {
		if batches, err = s.preferences.ListBatches(txCtx, periodID); err != nil || len(batches) == 0 {
			return err
		}
		prefs, err = s.preferences.ListByPeriod(txCtx, periodID)
		return err
	}
	switch tx := s.tx.(type) {
	case SnapshotReader:
		err = tx.InSnapshot(ctx, read)
	case nil:
		err = read(ctx)
	default:
		err = tx.InTx(ctx, read)
	}
	return batches, prefs, err
}

func (s *ReviewQueueService) project(ctx context.Context, periodID uuid.UUID) ([]QueueEntry, error) {
	batches, prefs, err := s.readPeriod(ctx, periodID)
	if err != nil {
		return nil, asServiceError(err)
	}
	if len(batches) == 0 {
		return nil, nil
	}

	byStudent := make(map[uuid.UUID][]RankStatus, len(batches))
	for _, p := range prefs {
		byStudent[p.StudentID] = append(byStudent[p.StudentID], RankStatus{
			Rank:           p.Rank,
			OrganizationID: p.OrganizationID,
			PreferenceID:   p.ID,
			Status:         p.Status,
		})
	}

	ids := make([]uuid.UUID, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.StudentID)
	}
	directory, err := s.students.Lookup(ctx, ids)
	if err != nil {
		return nil, asServiceError(err)
	}

	out := make([]QueueEntry, 0, len(batches))
	for _, b := range batches {
		ranks := byStudent[b.StudentID]
		sort.Slice(ranks, func(i, j int) bool { return ranks[i].Rank < ranks[j].Rank })
		e := QueueEntry{
			StudentID:   b.StudentID,
			SubmittedAt: b.SubmittedAt,
			HasNote:     b.HasNote(),
			Outcome:     b.Outcome,
			Ranks:       ranks,
		}
		if st, ok := directory[b.StudentID]; ok {
			e.FullName = st.FullName
			e.GPA = st.GPA
		} else {
			logWithFields(ctx, logrus.WarnLevel, "internship.queue.student_missing", logrus.Fields{
				"student_id": b.StudentID.String(),
				"period_id":  periodID.String(),
			})
		}
		out = append(out, e)
	}
	return out, nil
}

// Invalidate drops every cached queue of the period.
func (s *ReviewQueueService) Invalidate(ctx context.Context, periodID uuid.UUID, reason string) {
	s.cache.InvalidatePeriod(ctx, periodID)
	logWithFields(ctx, logrus.DebugLevel, "internship.queue.invalidated", logrus.Fields{
		"period_id": periodID.String(),
		"reason":    reason,
	})
}

func page(entries []QueueEntry, offset, limit int) []QueueEntry {
	if offset >= len(entries) {
		return []QueueEntry{}
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
