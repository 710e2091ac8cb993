package academics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
)

var (
	// errors
	ErrSubjectNotFound        = errors.New("subject not found")
	ErrSectionSubjectNotFound = errors.New("section subject not found")
	ErrSectionSubjectExists   = errors.New("this subject already exists in this section")
	ErrSessionNotFound        = errors.New("session not found")
	ErrNoActiveSession        = errors.New("no active academic session is configured")
	ErrExamNotFound           = errors.New("exam not found")
	ErrAssessmentNotFound     = errors.New("assessment not found")
)

type (
	// Directory resolves the student population; satisfied by user.Service.
	Directory interface {
		ActiveStudentIDsBySection(sectionID int) ([]int, error)
	}

	Repository interface {
		CreateSubject(subject Subject) (Subject, error)
		QuerySubjects(state core.LifecycleState) ([]Subject, error)
		DeactivateSubject(id int) error

		// CreateSectionSubject enforces (subject, section) uniqueness and
		// returns ErrSectionSubjectExists on a duplicate.
		CreateSectionSubject(ss SectionSubject) (SectionSubject, error)
		GetSectionSubjectByID(id int, state core.LifecycleState) (SectionSubject, error)
		SectionSubjectsBySection(sectionID int, state core.LifecycleState) ([]SectionSubject, error)

		CreateSession(session Session) (Session, error)
		GetSessionByID(id int, state core.LifecycleState) (Session, error)

		// CreateExam persists the exam, its assessments and all their items
		// in one transaction: either every row commits or none do.
		CreateExam(exam Exam, batches []AssessmentBatch) (Exam, error)
		GetExamByID(id int, state core.LifecycleState) (Exam, error)
		ExamsByIDs(ids []int, state core.LifecycleState) ([]Exam, error)
		ExamsBySection(sectionID int, state core.LifecycleState) ([]Exam, error)
		AssessmentsByExamIDs(examIDs []int, state core.LifecycleState) ([]Assessment, error)
		GetAssessmentByID(id int, state core.LifecycleState) (Assessment, error)
		ItemsByAssessment(assessmentID int, state core.LifecycleState) ([]StudentAssessmentItem, error)
		ItemsByAssessmentIDs(assessmentIDs []int, state core.LifecycleState) ([]StudentAssessmentItem, error)
		// UpdateItems bulk-updates obtained marks and comments.
		UpdateItems(items []StudentAssessmentItem) error
		// DeactivateExam soft-deletes the exam and cascades to its
		// assessments and their items, in one transaction.
		DeactivateExam(id int) error
	}

	Service struct {
		repo Repository
		dir  Directory
		conf *core.Config
		log  core.Logger
	}
)

func NewService(repo Repository, dir Directory, conf *core.Config, log core.Logger) *Service {
	if log == nil {
		log = core.NopLogger{}
	}
	return &Service{repo: repo, dir: dir, conf: conf, log: log}
}

// activeSession resolves the configured academic session and verifies it is
// still active. A missing or stale configuration surfaces as
// ErrNoActiveSession, never as a silent default.
func (svc *Service) activeSession() (Session, error) {
	if svc.conf.ActiveSessionID == 0 {
		return Session{}, ErrNoActiveSession
	}
	sess, err := svc.repo.GetSessionByID(svc.conf.ActiveSessionID, core.StateActive)
	if err == ErrSessionNotFound {
		return Session{}, ErrNoActiveSession
	}
	return sess, err
}

// CreateExam creates an exam for a section together with one assessment per
// selected section subject and one ungraded item per (assessment, enrolled
// student) pair, all within a single storage transaction.
func (svc *Service) CreateExam(ne NewExam) (Exam, error) {
	if err := ne.Validate(); err != nil {
		return Exam{}, err
	}
	sess, err := svc.activeSession()
	if err != nil {
		return Exam{}, err
	}

	// every selected assignment must exist in the target section
	for _, sa := range ne.SubjectAssessments {
		ss, err := svc.repo.GetSectionSubjectByID(sa.SectionSubjectID, core.StateActive)
		if err != nil {
			return Exam{}, err
		}
		if ss.SectionID != ne.SectionID {
			return Exam{}, ErrSectionSubjectNotFound
		}
	}

	studentIDs, err := svc.dir.ActiveStudentIDsBySection(ne.SectionID)
	if err != nil {
		return Exam{}, err
	}

	now := time.Now().UTC()
	today := toDate(now)
	exam := Exam{
		Name:         ne.Name,
		SectionID:    ne.SectionID,
		SessionID:    sess.ID,
		Date:         today,
		Consolidated: false,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	batches := make([]AssessmentBatch, 0, len(ne.SubjectAssessments))
	for _, sa := range ne.SubjectAssessments {
		batch := AssessmentBatch{
			Assessment: Assessment{
				SectionSubjectID: sa.SectionSubjectID,
				TotalMarks:       sa.TotalMarks,
				Date:             today,
				Consolidated:     false,
				IsActive:         true,
				CreatedAt:        now,
				UpdatedAt:        now,
			},
			Items: make([]StudentAssessmentItem, 0, len(studentIDs)),
		}
		for _, id := range studentIDs {
			batch.Items = append(batch.Items, StudentAssessmentItem{
				StudentID: id,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		batches = append(batches, batch)
	}

	exam, err = svc.repo.CreateExam(exam, batches)
	if err != nil {
		return Exam{}, err
	}
	svc.log.Info(fmt.Sprintf(
		"exam %q created for section %d: %d assessments x %d students",
		exam.Name, exam.SectionID, len(batches), len(studentIDs),
	))
	return exam, nil
}

// CreateConsolidatedExam merges the given exams into a derived exam: source
// assessments are grouped by section subject, total marks are summed per
// group, and each student's obtained marks are summed over their graded
// items in the group. A student with no graded item in a group stays
// ungraded (null), never zero.
//
// The student population is always drawn fresh from the target section; a
// source exam from another section contributes its own subject groups but
// never widens the roster.
func (svc *Service) CreateConsolidatedExam(nce NewConsolidatedExam) (Exam, error) {
	if err := nce.Validate(); err != nil {
		return Exam{}, err
	}
	sess, err := svc.activeSession()
	if err != nil {
		return Exam{}, err
	}

	exams, err := svc.repo.ExamsByIDs(nce.ExamIDs, core.StateActive)
	if err != nil {
		return Exam{}, err
	}
	if len(exams) != len(dedupe(nce.ExamIDs)) {
		return Exam{}, ErrExamNotFound
	}

	assessments, err := svc.repo.AssessmentsByExamIDs(nce.ExamIDs, core.StateActive)
	if err != nil {
		return Exam{}, err
	}

	// map each source assessment against its section subject
	groups := make(map[int][]Assessment)
	for _, a := range assessments {
		groups[a.SectionSubjectID] = append(groups[a.SectionSubjectID], a)
	}
	sectionSubjectIDs := make([]int, 0, len(groups))
	for id := range groups {
		sectionSubjectIDs = append(sectionSubjectIDs, id)
	}
	sort.Ints(sectionSubjectIDs)

	assessmentIDs := make([]int, 0, len(assessments))
	for _, a := range assessments {
		assessmentIDs = append(assessmentIDs, a.ID)
	}
	items, err := svc.repo.ItemsByAssessmentIDs(assessmentIDs, core.StateActive)
	if err != nil {
		return Exam{}, err
	}
	// (assessment, student) -> obtained marks
	marks := make(map[[2]int]null.Float64, len(items))
	for _, item := range items {
		marks[[2]int{item.AssessmentID, item.StudentID}] = item.ObtainedMarks
	}

	studentIDs, err := svc.dir.ActiveStudentIDsBySection(nce.SectionID)
	if err != nil {
		return Exam{}, err
	}

	now := time.Now().UTC()
	today := toDate(now)
	exam := Exam{
		Name:         nce.Name,
		SectionID:    nce.SectionID,
		SessionID:    sess.ID,
		Date:         today,
		Consolidated: true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	batches := make([]AssessmentBatch, 0, len(groups))
	for _, ssID := range sectionSubjectIDs {
		group := groups[ssID]

		var totalMarks float64
		for _, a := range group {
			totalMarks += a.TotalMarks
		}

		batch := AssessmentBatch{
			Assessment: Assessment{
				SectionSubjectID: ssID,
				TotalMarks:       totalMarks,
				Date:             today,
				Consolidated:     true,
				IsActive:         true,
				CreatedAt:        now,
				UpdatedAt:        now,
			},
			Items: make([]StudentAssessmentItem, 0, len(studentIDs)),
		}
		for _, studentID := range studentIDs {
			// sum the student's graded marks across the group; a fully
			// ungraded set stays null
			var (
				sum    float64
				graded bool
			)
			for _, a := range group {
				if m, ok := marks[[2]int{a.ID, studentID}]; ok && m.Valid {
					sum += m.Float64
					graded = true
				}
			}
			obtained := null.Float64{}
			if graded {
				obtained = null.Float64From(sum)
			}
			batch.Items = append(batch.Items, StudentAssessmentItem{
				StudentID:     studentID,
				ObtainedMarks: obtained,
				IsActive:      true,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
		batches = append(batches, batch)
	}

	return svc.repo.CreateExam(exam, batches)
}

// UpdateAssessmentItems applies graded marks to an assessment's items in one
// bulk update. Updates whose item id does not belong to the assessment are
// skipped, not rejected: partial concurrent grading is expected. Marks
// outside [0, total_marks] are rejected with field-level detail.
func (svc *Service) UpdateAssessmentItems(assessmentID int, updates []AssessmentItemUpdate) error {
	assessment, err := svc.repo.GetAssessmentByID(assessmentID, core.StateActive)
	if err != nil {
		return err
	}

	var flds []core.FieldError
	for i, upd := range updates {
		if upd.ObtainedMarks.Valid &&
			(upd.ObtainedMarks.Float64 < 0 || upd.ObtainedMarks.Float64 > assessment.TotalMarks) {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("items[%d].obtained_marks", i),
				Error: fmt.Sprintf("obtained marks must be between 0 and %g", assessment.TotalMarks),
			})
		}
	}
	if flds != nil {
		return core.NewValidationError(errors.New("obtained marks out of range"), flds...)
	}

	items, err := svc.repo.ItemsByAssessment(assessmentID, core.StateActive)
	if err != nil {
		return err
	}
	byID := make(map[int]StudentAssessmentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	now := time.Now().UTC()
	matched := make([]StudentAssessmentItem, 0, len(updates))
	for _, upd := range updates {
		item, ok := byID[upd.ItemID]
		if !ok {
			continue
		}
		item.ObtainedMarks = upd.ObtainedMarks
		if upd.Comments.Valid {
			item.Comments = upd.Comments
		}
		item.UpdatedAt = now
		matched = append(matched, item)
	}
	if len(matched) == 0 {
		return nil
	}
	return svc.repo.UpdateItems(matched)
}

// DeactivateExam soft-deletes an exam and cascades to its assessments and
// their items.
func (svc *Service) DeactivateExam(id int) error {
	if _, err := svc.repo.GetExamByID(id, core.StateActive); err != nil {
		return err
	}
	return svc.repo.DeactivateExam(id)
}

func (svc *Service) GetExam(id int) (Exam, error) {
	return svc.repo.GetExamByID(id, core.StateActive)
}

func (svc *Service) ExamsBySection(sectionID int, state core.LifecycleState) ([]Exam, error) {
	return svc.repo.ExamsBySection(sectionID, state)
}

func (svc *Service) AssessmentsOfExam(examID int) ([]Assessment, error) {
	return svc.repo.AssessmentsByExamIDs([]int{examID}, core.StateActive)
}

func (svc *Service) ItemsOfAssessment(assessmentID int) ([]StudentAssessmentItem, error) {
	return svc.repo.ItemsByAssessment(assessmentID, core.StateActive)
}

func (svc *Service) CreateSubject(ns NewSubject) (Subject, error) {
	if err := ns.Validate(); err != nil {
		return Subject{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateSubject(Subject{
		Name:      ns.Name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Subjects(state core.LifecycleState) ([]Subject, error) {
	return svc.repo.QuerySubjects(state)
}

func (svc *Service) DeactivateSubject(id int) error {
	return svc.repo.DeactivateSubject(id)
}

// AssignSubject teaches a subject in a section, optionally by a teacher.
// Duplicate assignments surface as field-level validation errors.
func (svc *Service) AssignSubject(nss NewSectionSubject) (SectionSubject, error) {
	if err := nss.Validate(); err != nil {
		return SectionSubject{}, err
	}
	now := time.Now().UTC()
	ss := SectionSubject{
		SubjectID: nss.SubjectID,
		SectionID: nss.SectionID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nss.TeacherID != 0 {
		ss.TeacherID = null.IntFrom(nss.TeacherID)
	}
	created, err := svc.repo.CreateSectionSubject(ss)
	if err == ErrSectionSubjectExists {
		return SectionSubject{}, core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: err.Error()})
	}
	return created, err
}

func (svc *Service) SectionSubjects(sectionID int, state core.LifecycleState) ([]SectionSubject, error) {
	return svc.repo.SectionSubjectsBySection(sectionID, state)
}

func (svc *Service) CreateSession(ns NewSession) (Session, error) {
	if err := ns.Validate(); err != nil {
		return Session{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateSession(Session{
		Name:      ns.Name,
		StartDate: toDate(ns.StartDate.UTC()),
		EndDate:   toDate(ns.EndDate.UTC()),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func toDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
