package school

import (
	"time"

	"github.com/SherMarri/schooly-api/core"
)

// Grade is a class level ("Class 5"); its roster is split into sections.
type Grade struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Section is a roster container within a grade. (Name, GradeID) is unique.
type Section struct {
	ID        int       `json:"id"`
	GradeID   int       `json:"grade_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type NewGrade struct {
	Name string `json:"name" validate:"required,max=20"`
}

func (ng *NewGrade) Validate() error {
	ng.Name = core.CleanString(ng.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(ng))
}

type NewSection struct {
	GradeID int    `json:"grade_id" validate:"required"`
	Name    string `json:"name" validate:"required,max=20"`
}

func (ns *NewSection) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(ns))
}
