package student

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Student is the read-only projection served by the student-records system.
type Student struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	FullName string          `json:"full_name" db:"full_name"`
	GPA      decimal.Decimal `json:"gpa" db:"gpa"`
	Email    string          `json:"email" db:"email"`
}
