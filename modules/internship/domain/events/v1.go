package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicPreferenceSubmittedV1 = "internship.preference.submitted.v1"
	TopicPreferenceDecidedV1   = "internship.preference.decided.v1"
	TopicAssignmentChangedV1   = "internship.assignment.changed.v1"
	EventVersionV1             = 1
)

const (
	ChangeSubmitted = "submitted"
	ChangeApproved  = "approved"
	ChangeRejected  = "rejected"
	ChangeAcademy   = "academy"
	ChangeAssigned  = "assigned"
	ChangeReplaced  = "replaced"
)

type PlacementEventV1 struct {
	EventID        uuid.UUID   `json:"event_id"`
	EventVersion   int         `json:"event_version"`
	RequestID      string      `json:"request_id,omitempty"`
	PeriodID       uuid.UUID   `json:"period_id"`
	StudentID      uuid.UUID   `json:"student_id"`
	ActorID        uuid.UUID   `json:"actor_id"`
	ChangeType     string      `json:"change_type"`
	PreferenceID   *uuid.UUID  `json:"preference_id,omitempty"`
	OrganizationID *uuid.UUID  `json:"organization_id,omitempty"`
	StaffID        *uuid.UUID  `json:"staff_id,omitempty"`
	RejectedIDs    []uuid.UUID `json:"rejected_ids,omitempty"`
	Outcome        string      `json:"outcome,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// Topic maps a change type to its outbox topic.
func Topic(changeType string) string {
	switch changeType {
	case ChangeSubmitted:
		return TopicPreferenceSubmittedV1
	case ChangeAssigned, ChangeReplaced:
		return TopicAssignmentChangedV1
	default:
		return TopicPreferenceDecidedV1
	}
}

// AffectsQueue reports whether the review queue of the period may change.
func (e PlacementEventV1) AffectsQueue() bool {
	return Topic(e.ChangeType) != TopicAssignmentChangedV1
}
