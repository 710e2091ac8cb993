package inmem

import (
	"sort"
	"time"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/academics"
)

type academicsRepository struct {
	db *DB
}

var _ academics.Repository = (*academicsRepository)(nil) // interface compliance check

func NewAcademicsRepository(db *DB) *academicsRepository {
	return &academicsRepository{db: db}
}

func (repo *academicsRepository) CreateSubject(subject academics.Subject) (academics.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return academics.Subject{}, err
	}
	repo.db.subjectSeq++
	subject.ID = repo.db.subjectSeq
	repo.db.subjects[subject.ID] = &subject
	return subject, nil
}

func (repo *academicsRepository) QuerySubjects(state core.LifecycleState) ([]academics.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var subjects []academics.Subject
	for _, subject := range repo.db.subjects {
		if state.Matches(subject.IsActive) {
			subjects = append(subjects, *subject)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (repo *academicsRepository) DeactivateSubject(id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	if subject, ok := repo.db.subjects[id]; ok {
		subject.IsActive = false
		subject.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (repo *academicsRepository) CreateSectionSubject(ss academics.SectionSubject) (academics.SectionSubject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return academics.SectionSubject{}, err
	}
	for _, existing := range repo.db.sectionSubjects {
		if existing.SubjectID == ss.SubjectID && existing.SectionID == ss.SectionID {
			return academics.SectionSubject{}, academics.ErrSectionSubjectExists
		}
	}
	repo.db.ssSeq++
	ss.ID = repo.db.ssSeq
	repo.db.sectionSubjects[ss.ID] = &ss
	return ss, nil
}

func (repo *academicsRepository) GetSectionSubjectByID(id int, state core.LifecycleState) (academics.SectionSubject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ss, ok := repo.db.sectionSubjects[id]; ok && state.Matches(ss.IsActive) {
		return *ss, nil
	}
	return academics.SectionSubject{}, academics.ErrSectionSubjectNotFound
}

func (repo *academicsRepository) SectionSubjectsBySection(sectionID int, state core.LifecycleState) ([]academics.SectionSubject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sss []academics.SectionSubject
	for _, ss := range repo.db.sectionSubjects {
		if ss.SectionID == sectionID && state.Matches(ss.IsActive) {
			sss = append(sss, *ss)
		}
	}
	sort.Slice(sss, func(i, j int) bool { return sss[i].ID < sss[j].ID })
	return sss, nil
}

func (repo *academicsRepository) CreateSession(session academics.Session) (academics.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return academics.Session{}, err
	}
	repo.db.sessionSeq++
	session.ID = repo.db.sessionSeq
	repo.db.sessions[session.ID] = &session
	return session, nil
}

func (repo *academicsRepository) GetSessionByID(id int, state core.LifecycleState) (academics.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if session, ok := repo.db.sessions[id]; ok && state.Matches(session.IsActive) {
		return *session, nil
	}
	return academics.Session{}, academics.ErrSessionNotFound
}

// CreateExam persists the exam, its assessments and their items together;
// a forced error leaves every table untouched.
func (repo *academicsRepository) CreateExam(exam academics.Exam, batches []academics.AssessmentBatch) (academics.Exam, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return academics.Exam{}, err
	}
	repo.db.examSeq++
	exam.ID = repo.db.examSeq
	repo.db.exams[exam.ID] = &exam

	for _, batch := range batches {
		a := batch.Assessment
		a.ExamID = exam.ID
		repo.db.assessmentSeq++
		a.ID = repo.db.assessmentSeq
		repo.db.assessments[a.ID] = &a

		for _, item := range batch.Items {
			item.AssessmentID = a.ID
			repo.db.itemSeq++
			item.ID = repo.db.itemSeq
			itemCopy := item
			repo.db.items[item.ID] = &itemCopy
		}
	}
	return exam, nil
}

func (repo *academicsRepository) GetExamByID(id int, state core.LifecycleState) (academics.Exam, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if exam, ok := repo.db.exams[id]; ok && state.Matches(exam.IsActive) {
		return *exam, nil
	}
	return academics.Exam{}, academics.ErrExamNotFound
}

func (repo *academicsRepository) ExamsByIDs(ids []int, state core.LifecycleState) ([]academics.Exam, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var exams []academics.Exam
	for _, id := range ids {
		if exam, ok := repo.db.exams[id]; ok && state.Matches(exam.IsActive) {
			exams = append(exams, *exam)
		}
	}
	return exams, nil
}

func (repo *academicsRepository) ExamsBySection(sectionID int, state core.LifecycleState) ([]academics.Exam, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var exams []academics.Exam
	for _, exam := range repo.db.exams {
		if exam.SectionID == sectionID && state.Matches(exam.IsActive) {
			exams = append(exams, *exam)
		}
	}
	sort.Slice(exams, func(i, j int) bool { return exams[i].ID < exams[j].ID })
	return exams, nil
}

func (repo *academicsRepository) AssessmentsByExamIDs(examIDs []int, state core.LifecycleState) ([]academics.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[int]bool, len(examIDs))
	for _, id := range examIDs {
		wanted[id] = true
	}
	var assessments []academics.Assessment
	for _, a := range repo.db.assessments {
		if wanted[a.ExamID] && state.Matches(a.IsActive) {
			assessments = append(assessments, *a)
		}
	}
	sort.Slice(assessments, func(i, j int) bool { return assessments[i].ID < assessments[j].ID })
	return assessments, nil
}

func (repo *academicsRepository) GetAssessmentByID(id int, state core.LifecycleState) (academics.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assessments[id]; ok && state.Matches(a.IsActive) {
		return *a, nil
	}
	return academics.Assessment{}, academics.ErrAssessmentNotFound
}

func (repo *academicsRepository) ItemsByAssessment(assessmentID int, state core.LifecycleState) ([]academics.StudentAssessmentItem, error) {
	return repo.ItemsByAssessmentIDs([]int{assessmentID}, state)
}

func (repo *academicsRepository) ItemsByAssessmentIDs(assessmentIDs []int, state core.LifecycleState) ([]academics.StudentAssessmentItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[int]bool, len(assessmentIDs))
	for _, id := range assessmentIDs {
		wanted[id] = true
	}
	var items []academics.StudentAssessmentItem
	for _, item := range repo.db.items {
		if wanted[item.AssessmentID] && state.Matches(item.IsActive) {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (repo *academicsRepository) UpdateItems(items []academics.StudentAssessmentItem) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, item := range items {
		if existing, ok := repo.db.items[item.ID]; ok {
			existing.ObtainedMarks = item.ObtainedMarks
			existing.Comments = item.Comments
			existing.UpdatedAt = now
		}
	}
	return nil
}

func (repo *academicsRepository) DeactivateExam(id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	now := time.Now().UTC()
	exam, ok := repo.db.exams[id]
	if !ok {
		return academics.ErrExamNotFound
	}
	exam.IsActive = false
	exam.UpdatedAt = now
	for _, a := range repo.db.assessments {
		if a.ExamID != id {
			continue
		}
		a.IsActive = false
		a.UpdatedAt = now
		for _, item := range repo.db.items {
			if item.AssessmentID == a.ID {
				item.IsActive = false
				item.UpdatedAt = now
			}
		}
	}
	return nil
}
