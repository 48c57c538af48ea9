package main

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/student"
	"github.com/fit-portal/placement/modules/internship/services"
)

type seedFile struct {
	Students []seedStudent `yaml:"students"`
	Periods  []seedPeriod  `yaml:"periods"`
}

type seedStudent struct {
	ID       string   `yaml:"id"`
	FullName string   `yaml:"full_name"`
	GPA      gpaValue `yaml:"gpa"`
	Email    string   `yaml:"email"`
}

type seedPeriod struct {
	Name        string           `yaml:"name"`
	Label       string           `yaml:"label"`
	OpensAt     time.Time        `yaml:"opens_at"`
	ClosesAt    time.Time        `yaml:"closes_at"`
	Open        bool             `yaml:"open"`
	Capacity    []seedAccount    `yaml:"capacity"`
	Assignments []seedAssignment `yaml:"assignments"`
}

type seedAccount struct {
	Kind      string `yaml:"kind"`
	SubjectID string `yaml:"subject_id"`
	MaxSlots  int    `yaml:"max_slots"`
}

type seedAssignment struct {
	StudentID string `yaml:"student_id"`
	StaffID   string `yaml:"staff_id"`
}

// gpaValue keeps the literal digits of the YAML scalar.
type gpaValue struct {
	decimal.Decimal
}

func (g *gpaValue) UnmarshalYAML(n *yaml.Node) error {
	d, err := decimal.NewFromString(n.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid gpa %q", n.Line, n.Value)
	}
	g.Decimal = d
	return nil
}

func loadSeed(r io.Reader) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return seedFile{}, errors.Wrap(err, "decode seed file")
	}
	if err := f.validate(); err != nil {
		return seedFile{}, err
	}
	return f, nil
}

func (f seedFile) validate() error {
	for i, st := range f.Students {
		if _, err := uuid.Parse(st.ID); err != nil {
			return errors.Errorf("students[%d]: invalid id %q", i, st.ID)
		}
		if st.FullName == "" {
			return errors.Errorf("students[%d]: full_name is required", i)
		}
	}
	for i, p := range f.Periods {
		if p.Name == "" {
			return errors.Errorf("periods[%d]: name is required", i)
		}
		for j, acc := range p.Capacity {
			if _, ok := capacity.ParseSubjectKind(acc.Kind); !ok {
				return errors.Errorf("periods[%d].capacity[%d]: invalid kind %q", i, j, acc.Kind)
			}
			if _, err := uuid.Parse(acc.SubjectID); err != nil {
				return errors.Errorf("periods[%d].capacity[%d]: invalid subject_id %q", i, j, acc.SubjectID)
			}
		}
		for j, a := range p.Assignments {
			if _, err := uuid.Parse(a.StudentID); err != nil {
				return errors.Errorf("periods[%d].assignments[%d]: invalid student_id %q", i, j, a.StudentID)
			}
			if _, err := uuid.Parse(a.StaffID); err != nil {
				return errors.Errorf("periods[%d].assignments[%d]: invalid staff_id %q", i, j, a.StaffID)
			}
		}
	}
	return nil
}

type studentWriter interface {
	Upsert(ctx context.Context, students ...student.Student) error
}

type seedServices struct {
	periods     *services.PeriodService
	capacity    *services.CapacityService
	assignments *services.AssignmentService
}

func newSeedServices(repos services.Repositories) seedServices {
	periods := services.NewPeriodService(repos, nil)
	caps := services.NewCapacityService(repos, nil)
	return seedServices{
		periods:     periods,
		capacity:    caps,
		assignments: services.NewAssignmentService(repos, periods, caps, nil),
	}
}

type seedResult struct {
	Students    int               `json:"students"`
	Periods     map[string]string `json:"periods"`
	Accounts    int               `json:"accounts"`
	Assignments int               `json:"assignments"`
}

// applySeed defines each period, enrolls its accounts, opens it when asked
// and then places the guide assignments, which need an open period.
func applySeed(ctx context.Context, svc seedServices, students studentWriter, f seedFile) (seedResult, error) {
	res := seedResult{Periods: map[string]string{}}

	records := make([]student.Student, 0, len(f.Students))
	for _, st := range f.Students {
		records = append(records, student.Student{
			ID:       uuid.MustParse(st.ID),
			FullName: st.FullName,
			GPA:      st.GPA.Decimal,
			Email:    st.Email,
		})
	}
	if err := students.Upsert(ctx, records...); err != nil {
		return res, err
	}
	res.Students = len(records)

	for _, sp := range f.Periods {
		p, err := svc.periods.Define(ctx, services.DefinePeriodInput{
			Name:     sp.Name,
			Label:    sp.Label,
			OpensAt:  sp.OpensAt,
			ClosesAt: sp.ClosesAt,
		})
		if err != nil {
			return res, errors.Wrapf(err, "define period %s", sp.Name)
		}
		res.Periods[sp.Name] = p.ID.String()

		for _, acc := range sp.Capacity {
			kind, _ := capacity.ParseSubjectKind(acc.Kind)
			key := capacity.NewKey(p.ID, kind, uuid.MustParse(acc.SubjectID))
			if _, err := svc.capacity.Enroll(ctx, key, acc.MaxSlots); err != nil {
				return res, errors.Wrapf(err, "enroll %s %s", acc.Kind, acc.SubjectID)
			}
			res.Accounts++
		}

		if sp.Open {
			if _, err := svc.periods.Open(ctx, p.ID, svc.periods.Now()); err != nil {
				return res, errors.Wrapf(err, "open period %s", sp.Name)
			}
		}

		for _, a := range sp.Assignments {
			if _, err := svc.assignments.Assign(ctx, uuid.MustParse(a.StudentID), p.ID, uuid.MustParse(a.StaffID)); err != nil {
				return res, errors.Wrapf(err, "assign student %s", a.StudentID)
			}
			res.Assignments++
		}
	}
	return res, nil
}
