package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/academics"
)

type academicsRepository struct {
	db *sqlx.DB
}

var _ academics.Repository = (*academicsRepository)(nil) // interface compliance check

func NewAcademicsRepository(db *sqlx.DB) *academicsRepository {
	return &academicsRepository{db: db}
}

func (repo academicsRepository) CreateSubject(subject academics.Subject) (academics.Subject, error) {
	query := `INSERT INTO subject (name, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err := repo.db.QueryRow(query, subject.Name, subject.IsActive, subject.CreatedAt.UTC(), subject.UpdatedAt.UTC()).Scan(&subject.ID)
	if err != nil {
		return academics.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return subject, nil
}

func (repo academicsRepository) QuerySubjects(state core.LifecycleState) ([]academics.Subject, error) {
	var subjects []academics.Subject
	query := `SELECT * FROM subject WHERE true` + stateClause(state, "is_active") + " ORDER BY name"
	if err := repo.db.Select(&subjects, query); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

func (repo academicsRepository) DeactivateSubject(id int) error {
	if _, err := repo.db.Exec(`UPDATE subject SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return errors.Wrap(err, "deactivating subject")
	}
	return nil
}

func (repo academicsRepository) CreateSectionSubject(ss academics.SectionSubject) (academics.SectionSubject, error) {
	query := `
INSERT INTO section_subject (subject_id, section_id, teacher_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRow(query, ss.SubjectID, ss.SectionID, ss.TeacherID, ss.IsActive, ss.CreatedAt.UTC(), ss.UpdatedAt.UTC()).Scan(&ss.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return academics.SectionSubject{}, academics.ErrSectionSubjectExists
		}
		return academics.SectionSubject{}, errors.Wrap(err, "inserting section subject")
	}
	return ss, nil
}

func (repo academicsRepository) GetSectionSubjectByID(id int, state core.LifecycleState) (academics.SectionSubject, error) {
	var ss academics.SectionSubject
	query := `SELECT * FROM section_subject WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&ss, query, id); err != nil {
		return academics.SectionSubject{}, trapNoRowsErr(err, academics.ErrSectionSubjectNotFound, "finding section subject")
	}
	return ss, nil
}

func (repo academicsRepository) SectionSubjectsBySection(sectionID int, state core.LifecycleState) ([]academics.SectionSubject, error) {
	var sss []academics.SectionSubject
	query := `SELECT * FROM section_subject WHERE section_id = $1` + stateClause(state, "is_active") + " ORDER BY id"
	if err := repo.db.Select(&sss, query, sectionID); err != nil {
		return nil, errors.Wrap(err, "querying section subjects")
	}
	return sss, nil
}

func (repo academicsRepository) CreateSession(session academics.Session) (academics.Session, error) {
	query := `
INSERT INTO session (name, start_date, end_date, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRow(query, session.Name, session.StartDate.UTC(), session.EndDate.UTC(),
		session.IsActive, session.CreatedAt.UTC(), session.UpdatedAt.UTC()).Scan(&session.ID)
	if err != nil {
		return academics.Session{}, errors.Wrap(err, "inserting session")
	}
	return session, nil
}

func (repo academicsRepository) GetSessionByID(id int, state core.LifecycleState) (academics.Session, error) {
	var sess academics.Session
	query := `SELECT * FROM session WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&sess, query, id); err != nil {
		return academics.Session{}, trapNoRowsErr(err, academics.ErrSessionNotFound, "finding session")
	}
	return sess, nil
}

// CreateExam inserts the exam, its assessments and their student items in one
// transaction. Items go in through COPY, one batch per assessment.
func (repo academicsRepository) CreateExam(exam academics.Exam, batches []academics.AssessmentBatch) (academics.Exam, error) {
	tx, err := repo.db.Begin()
	if err != nil {
		return academics.Exam{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO exam (name, section_id, session_id, date, consolidated, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err = tx.QueryRow(query, exam.Name, exam.SectionID, exam.SessionID, exam.Date.UTC(),
		exam.Consolidated, exam.IsActive, exam.CreatedAt.UTC(), exam.UpdatedAt.UTC()).Scan(&exam.ID)
	if err != nil {
		return academics.Exam{}, errors.Wrap(err, "inserting exam")
	}

	for _, batch := range batches {
		a := batch.Assessment
		query = `
INSERT INTO assessment (exam_id, section_subject_id, total_marks, date, consolidated, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
		err = tx.QueryRow(query, exam.ID, a.SectionSubjectID, a.TotalMarks, a.Date.UTC(),
			a.Consolidated, a.IsActive, a.CreatedAt.UTC(), a.UpdatedAt.UTC()).Scan(&a.ID)
		if err != nil {
			return academics.Exam{}, errors.Wrap(err, "inserting assessment")
		}

		stmt, err := tx.Prepare(pq.CopyIn("student_assessment_item",
			"assessment_id", "student_id", "obtained_marks", "comments", "is_active", "created_at", "updated_at"))
		if err != nil {
			return academics.Exam{}, errors.Wrap(err, "preparing item copy")
		}
		for _, item := range batch.Items {
			if _, err = stmt.Exec(a.ID, item.StudentID, item.ObtainedMarks, item.Comments,
				item.IsActive, item.CreatedAt.UTC(), item.UpdatedAt.UTC()); err != nil {
				_ = stmt.Close()
				return academics.Exam{}, errors.Wrap(err, "copying items")
			}
		}
		if _, err = stmt.Exec(); err != nil {
			_ = stmt.Close()
			return academics.Exam{}, errors.Wrap(err, "flushing item copy")
		}
		if err = stmt.Close(); err != nil {
			return academics.Exam{}, errors.Wrap(err, "closing item copy")
		}
	}

	if err = tx.Commit(); err != nil {
		return academics.Exam{}, errors.Wrap(err, "committing exam")
	}
	return exam, nil
}

func (repo academicsRepository) GetExamByID(id int, state core.LifecycleState) (academics.Exam, error) {
	var exam academics.Exam
	query := `SELECT * FROM exam WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&exam, query, id); err != nil {
		return academics.Exam{}, trapNoRowsErr(err, academics.ErrExamNotFound, "finding exam")
	}
	return exam, nil
}

func (repo academicsRepository) ExamsByIDs(ids []int, state core.LifecycleState) ([]academics.Exam, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM exam WHERE id IN (?)`+stateClause(state, "is_active"), ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	var exams []academics.Exam
	if err = repo.db.Select(&exams, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	return exams, nil
}

func (repo academicsRepository) ExamsBySection(sectionID int, state core.LifecycleState) ([]academics.Exam, error) {
	var exams []academics.Exam
	query := `SELECT * FROM exam WHERE section_id = $1` + stateClause(state, "is_active") + " ORDER BY date DESC"
	if err := repo.db.Select(&exams, query, sectionID); err != nil {
		return nil, errors.Wrap(err, "querying exams by section")
	}
	return exams, nil
}

func (repo academicsRepository) AssessmentsByExamIDs(examIDs []int, state core.LifecycleState) ([]academics.Assessment, error) {
	if len(examIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM assessment WHERE exam_id IN (?)`+stateClause(state, "is_active"), examIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	var assessments []academics.Assessment
	if err = repo.db.Select(&assessments, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	return assessments, nil
}

func (repo academicsRepository) GetAssessmentByID(id int, state core.LifecycleState) (academics.Assessment, error) {
	var a academics.Assessment
	query := `SELECT * FROM assessment WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&a, query, id); err != nil {
		return academics.Assessment{}, trapNoRowsErr(err, academics.ErrAssessmentNotFound, "finding assessment")
	}
	return a, nil
}

func (repo academicsRepository) ItemsByAssessment(assessmentID int, state core.LifecycleState) ([]academics.StudentAssessmentItem, error) {
	var items []academics.StudentAssessmentItem
	query := `SELECT * FROM student_assessment_item WHERE assessment_id = $1` + stateClause(state, "is_active") + " ORDER BY student_id"
	if err := repo.db.Select(&items, query, assessmentID); err != nil {
		return nil, errors.Wrap(err, "querying assessment items")
	}
	return items, nil
}

func (repo academicsRepository) ItemsByAssessmentIDs(assessmentIDs []int, state core.LifecycleState) ([]academics.StudentAssessmentItem, error) {
	if len(assessmentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM student_assessment_item WHERE assessment_id IN (?)`+stateClause(state, "is_active"), assessmentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying assessment items")
	}
	var items []academics.StudentAssessmentItem
	if err = repo.db.Select(&items, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying assessment items")
	}
	return items, nil
}

func (repo academicsRepository) UpdateItems(items []academics.StudentAssessmentItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := repo.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`UPDATE student_assessment_item SET obtained_marks = $1, comments = $2, updated_at = $3 WHERE id = $4`)
	if err != nil {
		return errors.Wrap(err, "preparing item update")
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, item := range items {
		if _, err = stmt.Exec(item.ObtainedMarks, item.Comments, now, item.ID); err != nil {
			return errors.Wrap(err, "updating item")
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing item updates")
	}
	return nil
}

// DeactivateExam soft-deletes the exam and cascades to its assessments and
// their items, all in one transaction.
func (repo academicsRepository) DeactivateExam(id int) error {
	tx, err := repo.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err = tx.Exec(`UPDATE exam SET is_active = false, updated_at = $1 WHERE id = $2`, now, id); err != nil {
		return errors.Wrap(err, "deactivating exam")
	}
	if _, err = tx.Exec(`
UPDATE student_assessment_item SET is_active = false, updated_at = $1
WHERE assessment_id IN (SELECT id FROM assessment WHERE exam_id = $2)`, now, id); err != nil {
		return errors.Wrap(err, "deactivating assessment items")
	}
	if _, err = tx.Exec(`UPDATE assessment SET is_active = false, updated_at = $1 WHERE exam_id = $2`, now, id); err != nil {
		return errors.Wrap(err, "deactivating assessments")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing exam deactivation")
	}
	return nil
}
