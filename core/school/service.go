package school

import (
	"errors"
	"time"

	"github.com/SherMarri/schooly-api/core"
)

var (
	// errors
	ErrGradeNotFound   = errors.New("grade not found")
	ErrSectionNotFound = errors.New("section not found")
	ErrSectionExists   = errors.New("a section with this name already exists in this grade")
)

type (
	Repository interface {
		CreateGrade(grade Grade) (Grade, error)
		GetGradeByID(id int, state core.LifecycleState) (Grade, error)
		QueryGrades(state core.LifecycleState) ([]Grade, error)
		// CreateSection enforces (name, grade) uniqueness and returns
		// ErrSectionExists on a duplicate.
		CreateSection(section Section) (Section, error)
		GetSectionByID(id int, state core.LifecycleState) (Section, error)
		SectionsByGrade(gradeID int, state core.LifecycleState) ([]Section, error)
		DeactivateGrade(id int) error
		DeactivateSection(id int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CreateGrade(ng NewGrade) (Grade, error) {
	if err := ng.Validate(); err != nil {
		return Grade{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateGrade(Grade{
		Name:      ng.Name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) CreateSection(ns NewSection) (Section, error) {
	if err := ns.Validate(); err != nil {
		return Section{}, err
	}
	if _, err := svc.repo.GetGradeByID(ns.GradeID, core.StateActive); err != nil {
		return Section{}, err
	}

	now := time.Now().UTC()
	sec, err := svc.repo.CreateSection(Section{
		GradeID:   ns.GradeID,
		Name:      ns.Name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == ErrSectionExists {
		return Section{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return sec, err
}

func (svc *Service) Grades(state core.LifecycleState) ([]Grade, error) {
	return svc.repo.QueryGrades(state)
}

func (svc *Service) GetGrade(id int) (Grade, error) {
	return svc.repo.GetGradeByID(id, core.StateActive)
}

func (svc *Service) GetSection(id int) (Section, error) {
	return svc.repo.GetSectionByID(id, core.StateActive)
}

func (svc *Service) SectionsOfGrade(gradeID int, state core.LifecycleState) ([]Section, error) {
	return svc.repo.SectionsByGrade(gradeID, state)
}

// Structure lookups; these make *Service satisfy the structure interface
// declared by the finance package.

func (svc *Service) ActiveGradeExists(id int) (bool, error) {
	_, err := svc.repo.GetGradeByID(id, core.StateActive)
	if err == ErrGradeNotFound {
		return false, nil
	}
	return err == nil, err
}

func (svc *Service) ActiveSectionExists(id int) (bool, error) {
	_, err := svc.repo.GetSectionByID(id, core.StateActive)
	if err == ErrSectionNotFound {
		return false, nil
	}
	return err == nil, err
}

// DeactivateGrade soft-deletes a grade; its sections and students are left
// untouched.
func (svc *Service) DeactivateGrade(id int) error {
	return svc.repo.DeactivateGrade(id)
}

func (svc *Service) DeactivateSection(id int) error {
	return svc.repo.DeactivateSection(id)
}
