package inmem

import (
	"sort"
	"time"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateGrade(grade school.Grade) (school.Grade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return school.Grade{}, err
	}
	repo.db.gradeSeq++
	grade.ID = repo.db.gradeSeq
	repo.db.grades[grade.ID] = &grade
	return grade, nil
}

func (repo *schoolRepository) GetGradeByID(id int, state core.LifecycleState) (school.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grade, ok := repo.db.grades[id]; ok && state.Matches(grade.IsActive) {
		return *grade, nil
	}
	return school.Grade{}, school.ErrGradeNotFound
}

func (repo *schoolRepository) QueryGrades(state core.LifecycleState) ([]school.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var grades []school.Grade
	for _, grade := range repo.db.grades {
		if state.Matches(grade.IsActive) {
			grades = append(grades, *grade)
		}
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].Name < grades[j].Name })
	return grades, nil
}

func (repo *schoolRepository) CreateSection(section school.Section) (school.Section, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return school.Section{}, err
	}
	for _, sect := range repo.db.sections {
		if sect.GradeID == section.GradeID && sect.Name == section.Name {
			return school.Section{}, school.ErrSectionExists
		}
	}
	repo.db.sectSeq++
	section.ID = repo.db.sectSeq
	repo.db.sections[section.ID] = &section
	return section, nil
}

func (repo *schoolRepository) GetSectionByID(id int, state core.LifecycleState) (school.Section, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sect, ok := repo.db.sections[id]; ok && state.Matches(sect.IsActive) {
		return *sect, nil
	}
	return school.Section{}, school.ErrSectionNotFound
}

func (repo *schoolRepository) SectionsByGrade(gradeID int, state core.LifecycleState) ([]school.Section, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sections []school.Section
	for _, sect := range repo.db.sections {
		if sect.GradeID == gradeID && state.Matches(sect.IsActive) {
			sections = append(sections, *sect)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })
	return sections, nil
}

func (repo *schoolRepository) DeactivateGrade(id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	if grade, ok := repo.db.grades[id]; ok {
		grade.IsActive = false
		grade.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (repo *schoolRepository) DeactivateSection(id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	if sect, ok := repo.db.sections[id]; ok {
		sect.IsActive = false
		sect.UpdatedAt = time.Now().UTC()
	}
	return nil
}
