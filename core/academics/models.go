package academics

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
)

// Subject is a named teachable unit ("Mathematics").
type Subject struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// SectionSubject is a subject-teaching assignment: this subject is taught in
// this section, optionally by this teacher. (SubjectID, SectionID) is unique.
type SectionSubject struct {
	ID        int       `json:"id"`
	SubjectID int       `json:"subject_id"`
	SectionID int       `json:"section_id"`
	TeacherID null.Int  `json:"teacher_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Session is an academic year/term. The one in effect is picked by
// configuration, not by an is_active row scan.
type Session struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Exam is a named grading event scoped to one section and one session.
// Consolidated exams are derived by summing prior exams.
type Exam struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	SectionID    int       `json:"section_id"`
	SessionID    int       `json:"session_id"`
	Date         time.Time `json:"date"`
	Consolidated bool      `json:"consolidated"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Assessment grades one section subject under one exam.
type Assessment struct {
	ID               int       `json:"id"`
	ExamID           int       `json:"exam_id"`
	SectionSubjectID int       `json:"section_subject_id"`
	TotalMarks       float64   `json:"total_marks"`
	Date             time.Time `json:"date"`
	Consolidated     bool      `json:"consolidated"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

// StudentAssessmentItem is one student's score in one assessment.
// ObtainedMarks stays null until graded: null means "not graded", which is
// not the same thing as a scored zero.
type StudentAssessmentItem struct {
	ID            int          `json:"id"`
	AssessmentID  int          `json:"assessment_id"`
	StudentID     int          `json:"student_id"`
	ObtainedMarks null.Float64 `json:"obtained_marks"`
	Comments      null.String  `json:"comments"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"` // UTC
	UpdatedAt     time.Time    `json:"updated_at"` // UTC
}

// AssessmentBatch pairs an assessment with the per-student items to create
// under it; the repository links the items once ids are assigned.
type AssessmentBatch struct {
	Assessment Assessment
	Items      []StudentAssessmentItem
}

type NewSubject struct {
	Name string `json:"name" validate:"required,max=20"`
}

func (ns *NewSubject) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(ns))
}

type NewSectionSubject struct {
	SubjectID int `json:"subject_id" validate:"required"`
	SectionID int `json:"section_id" validate:"required"`
	TeacherID int `json:"teacher_id" validate:"omitempty,gt=0"`
}

func (nss *NewSectionSubject) Validate() error {
	return core.TranslateValidationErrors(core.Validate.Struct(nss))
}

type NewSession struct {
	Name      string    `json:"name" validate:"required,max=50"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

func (ns *NewSession) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(ns))
}

// SubjectAssessment selects a section subject and the maximum achievable
// marks for it in a new exam.
type SubjectAssessment struct {
	SectionSubjectID int     `json:"section_subject_id" validate:"required"`
	TotalMarks       float64 `json:"total_marks" validate:"required,gt=0"`
}

type NewExam struct {
	Name               string              `json:"name" validate:"required,max=50"`
	SectionID          int                 `json:"section_id" validate:"required"`
	SubjectAssessments []SubjectAssessment `json:"subject_assessments" validate:"required,min=1,dive"`
}

func (ne *NewExam) Validate() error {
	ne.Name = core.CleanString(ne.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(ne))
}

// NewConsolidatedExam merges the given exams' results into one derived exam.
// At least one source exam is required: a consolidated exam with no source
// data is not a valid state.
type NewConsolidatedExam struct {
	Name      string `json:"name" validate:"required,max=50"`
	SectionID int    `json:"section_id" validate:"required"`
	ExamIDs   []int  `json:"exam_ids" validate:"required,min=1,dive,gt=0"`
}

func (nce *NewConsolidatedExam) Validate() error {
	nce.Name = core.CleanString(nce.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(nce))
}

// AssessmentItemUpdate carries one graded (or re-graded) item. Comments are
// only touched when set.
type AssessmentItemUpdate struct {
	ItemID        int          `json:"id" validate:"required"`
	ObtainedMarks null.Float64 `json:"obtained_marks"`
	Comments      null.String  `json:"comments"`
}
