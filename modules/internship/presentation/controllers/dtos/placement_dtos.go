package dtos

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/pkg/constants"
)

type DefinePeriodDTO struct {
	Name     string    `json:"name" validate:"required,max=200"`
	Label    string    `json:"label" validate:"omitempty,max=200"`
	OpensAt  time.Time `json:"opens_at" validate:"required"`
	ClosesAt time.Time `json:"closes_at" validate:"required"`
}

type EnrollDTO struct {
	Kind      string    `json:"subject_kind" validate:"required,oneof=enterprise staff"`
	SubjectID uuid.UUID `json:"subject_id" validate:"required"`
	MaxSlots  *int      `json:"max_slots" validate:"required,min=0"`
}

type UpdateAccountDTO struct {
	MaxSlots  *int  `json:"max_slots" validate:"omitempty,min=0"`
	Accepting *bool `json:"accepting"`
}

type AssignDTO struct {
	StaffID uuid.UUID `json:"staff_id" validate:"required"`
}

type ChoiceDTO struct {
	Rank           int       `json:"rank"`
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
}

// SubmitPreferencesDTO accepts explicit ranks or an ordered organization
// list, not both.
type SubmitPreferencesDTO struct {
	Choices         []ChoiceDTO `json:"choices" validate:"omitempty,dive"`
	OrganizationIDs []uuid.UUID `json:"organization_ids" validate:"omitempty,dive,required"`
	Note            string      `json:"note" validate:"omitempty,max=2000"`
}

type RejectDTO struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// Ok validates a DTO and returns field -> failed tag.
func Ok(dto any) (map[string]string, bool) {
	errorMessages := map[string]string{}
	err := constants.Validate.Struct(dto)
	if err == nil {
		return errorMessages, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errorMessages["body"] = err.Error()
		return errorMessages, false
	}
	for _, fe := range verrs {
		errorMessages[fe.Field()] = fe.Tag()
	}
	return errorMessages, len(errorMessages) == 0
}

func (dto *UpdateAccountDTO) Empty() bool {
	return dto.MaxSlots == nil && dto.Accepting == nil
}

// ToChoices returns the ranked choices and false when both or neither forms
// were supplied.
func (dto *SubmitPreferencesDTO) ToChoices() ([]preference.Choice, bool) {
	switch {
	case len(dto.Choices) > 0 && len(dto.OrganizationIDs) > 0:
		return nil, false
	case len(dto.OrganizationIDs) > 0:
		return preference.ChoicesFromRanked(dto.OrganizationIDs), true
	case len(dto.Choices) > 0:
		out := make([]preference.Choice, 0, len(dto.Choices))
		for _, c := range dto.Choices {
			out = append(out, preference.Choice{Rank: c.Rank, OrganizationID: c.OrganizationID})
		}
		return out, true
	default:
		return nil, false
	}
}
