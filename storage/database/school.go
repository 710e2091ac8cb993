package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/school"
)

// pqUniqueViolation is the postgres error code for unique constraint violations.
const pqUniqueViolation = "23505"

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

type gradeRow struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type sectionRow struct {
	ID        int       `db:"id"`
	GradeID   int       `db:"grade_id"`
	Name      string    `db:"name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (repo schoolRepository) CreateGrade(grade school.Grade) (school.Grade, error) {
	query := `INSERT INTO grade (name, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err := repo.db.QueryRow(query, grade.Name, grade.IsActive, grade.CreatedAt.UTC(), grade.UpdatedAt.UTC()).Scan(&grade.ID)
	if err != nil {
		return school.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return grade, nil
}

func (repo schoolRepository) GetGradeByID(id int, state core.LifecycleState) (school.Grade, error) {
	var row gradeRow
	query := `SELECT * FROM grade WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&row, query, id); err != nil {
		return school.Grade{}, trapNoRowsErr(err, school.ErrGradeNotFound, "finding grade")
	}
	return school.Grade(row), nil
}

func (repo schoolRepository) QueryGrades(state core.LifecycleState) ([]school.Grade, error) {
	var rows []gradeRow
	query := `SELECT * FROM grade WHERE true` + stateClause(state, "is_active") + " ORDER BY name"
	if err := repo.db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	grades := make([]school.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, school.Grade(row))
	}
	return grades, nil
}

func (repo schoolRepository) CreateSection(section school.Section) (school.Section, error) {
	query := `INSERT INTO section (grade_id, name, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := repo.db.QueryRow(query, section.GradeID, section.Name, section.IsActive, section.CreatedAt.UTC(), section.UpdatedAt.UTC()).Scan(&section.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return school.Section{}, school.ErrSectionExists
		}
		return school.Section{}, errors.Wrap(err, "inserting section")
	}
	return section, nil
}

func (repo schoolRepository) GetSectionByID(id int, state core.LifecycleState) (school.Section, error) {
	var row sectionRow
	query := `SELECT * FROM section WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&row, query, id); err != nil {
		return school.Section{}, trapNoRowsErr(err, school.ErrSectionNotFound, "finding section")
	}
	return school.Section(row), nil
}

func (repo schoolRepository) SectionsByGrade(gradeID int, state core.LifecycleState) ([]school.Section, error) {
	var rows []sectionRow
	query := `SELECT * FROM section WHERE grade_id = $1` + stateClause(state, "is_active") + " ORDER BY name"
	if err := repo.db.Select(&rows, query, gradeID); err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	sections := make([]school.Section, 0, len(rows))
	for _, row := range rows {
		sections = append(sections, school.Section(row))
	}
	return sections, nil
}

func (repo schoolRepository) DeactivateGrade(id int) error {
	if _, err := repo.db.Exec(`UPDATE grade SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return errors.Wrap(err, "deactivating grade")
	}
	return nil
}

func (repo schoolRepository) DeactivateSection(id int) error {
	if _, err := repo.db.Exec(`UPDATE section SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return errors.Wrap(err, "deactivating section")
	}
	return nil
}
