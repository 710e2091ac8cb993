package academics_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/academics"
	"github.com/SherMarri/schooly-api/core/user"
	"github.com/SherMarri/schooly-api/storage/database/inmem"
	testutil "github.com/SherMarri/schooly-api/tests"
)

type fixture struct {
	db      *inmem.DB
	repo    academics.Repository
	svc     *academics.Service
	conf    *core.Config
	section int
	math    academics.SectionSubject
	english academics.SectionSubject
	student [3]user.User
}

// newFixture seeds one section with three active students and two section
// subjects, and points the configuration at a seeded session.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := inmem.Open()
	repo := inmem.NewAcademicsRepository(db)
	usrRepo := inmem.NewUserRepository(db)
	schRepo := inmem.NewSchoolRepository(db)
	conf := testutil.Conf()

	grade := testutil.CreateGrade(t, schRepo, "Class 5")
	section := testutil.CreateSection(t, schRepo, grade.ID, "A")
	sess := testutil.CreateSession(t, repo, "2020-2021")
	conf.ActiveSessionID = sess.ID

	math := testutil.CreateSubject(t, repo, "Mathematics")
	english := testutil.CreateSubject(t, repo, "English")

	f := &fixture{
		db:      db,
		repo:    repo,
		conf:    conf,
		section: section.ID,
		math:    testutil.AssignSubject(t, repo, math.ID, section.ID),
		english: testutil.AssignSubject(t, repo, english.ID, section.ID),
	}
	f.student[0] = testutil.CreateStudent(t, usrRepo, "Ali Hassan", "ali01", section.ID, true)
	f.student[1] = testutil.CreateStudent(t, usrRepo, "Sara Khan", "sara02", section.ID, true)
	f.student[2] = testutil.CreateStudent(t, usrRepo, "Omar Riaz", "omar03", section.ID, true)

	usrSvc := user.NewService(usrRepo, nil, conf)
	f.svc = academics.NewService(repo, usrSvc, conf, nil)
	return f
}

func TestService_CreateExam(t *testing.T) {
	f := newFixture(t)

	exam, err := f.svc.CreateExam(academics.NewExam{
		Name:      "Mid Term",
		SectionID: f.section,
		SubjectAssessments: []academics.SubjectAssessment{
			{SectionSubjectID: f.math.ID, TotalMarks: 100},
			{SectionSubjectID: f.english.ID, TotalMarks: 50},
		},
	})
	require.NoError(t, err)
	assert.False(t, exam.Consolidated)
	assert.True(t, exam.IsActive)

	assessments, err := f.svc.AssessmentsOfExam(exam.ID)
	require.NoError(t, err)
	require.Len(t, assessments, 2)

	// one ungraded item per (assessment, student) pair
	for _, a := range assessments {
		items, err := f.svc.ItemsOfAssessment(a.ID)
		require.NoError(t, err)
		require.Len(t, items, 3)
		for _, item := range items {
			assert.False(t, item.ObtainedMarks.Valid, "fresh items must be ungraded")
		}
	}
}

func TestService_CreateExam_errors(t *testing.T) {
	f := newFixture(t)

	otherGrade := testutil.CreateGrade(t, inmem.NewSchoolRepository(f.db), "Class 6")
	otherSection := testutil.CreateSection(t, inmem.NewSchoolRepository(f.db), otherGrade.ID, "A")

	tests := []struct {
		name    string
		mutate  func()
		ne      academics.NewExam
		wantErr error
	}{
		{
			name: "no subject assessments",
			ne:   academics.NewExam{Name: "Mid Term", SectionID: f.section},
		},
		{
			name: "unknown section subject",
			ne: academics.NewExam{
				Name:               "Mid Term",
				SectionID:          f.section,
				SubjectAssessments: []academics.SubjectAssessment{{SectionSubjectID: 999, TotalMarks: 100}},
			},
			wantErr: academics.ErrSectionSubjectNotFound,
		},
		{
			name: "section subject from another section",
			ne: academics.NewExam{
				Name:               "Mid Term",
				SectionID:          otherSection.ID,
				SubjectAssessments: []academics.SubjectAssessment{{SectionSubjectID: f.math.ID, TotalMarks: 100}},
			},
			wantErr: academics.ErrSectionSubjectNotFound,
		},
		{
			name:   "no active session",
			mutate: func() { f.conf.ActiveSessionID = 0 },
			ne: academics.NewExam{
				Name:               "Mid Term",
				SectionID:          f.section,
				SubjectAssessments: []academics.SubjectAssessment{{SectionSubjectID: f.math.ID, TotalMarks: 100}},
			},
			wantErr: academics.ErrNoActiveSession,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate != nil {
				tt.mutate()
			}
			_, err := f.svc.CreateExam(tt.ne)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				var vErr *core.ValidationError
				assert.True(t, errors.As(err, &vErr))
			}
		})
	}
}

func TestService_CreateExam_storageFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)

	forced := errors.New("storage down")
	f.db.ForceErr(forced)
	_, err := f.svc.CreateExam(academics.NewExam{
		Name:               "Mid Term",
		SectionID:          f.section,
		SubjectAssessments: []academics.SubjectAssessment{{SectionSubjectID: f.math.ID, TotalMarks: 100}},
	})
	assert.Equal(t, forced, err)
	f.db.ForceErr(nil)

	exams, err := f.svc.ExamsBySection(f.section, core.StateAny)
	require.NoError(t, err)
	assert.Empty(t, exams, "a failed creation must persist nothing")
}

// grade grades each student's item in the given assessment, in roster order.
func grade(t *testing.T, f *fixture, assessmentID int, marks []null.Float64) {
	t.Helper()
	items, err := f.svc.ItemsOfAssessment(assessmentID)
	require.NoError(t, err)
	require.Len(t, items, len(marks))

	updates := make([]academics.AssessmentItemUpdate, 0, len(marks))
	for i, item := range items {
		updates = append(updates, academics.AssessmentItemUpdate{ItemID: item.ID, ObtainedMarks: marks[i]})
	}
	require.NoError(t, f.svc.UpdateAssessmentItems(assessmentID, updates))
}

func TestService_CreateConsolidatedExam(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreateExam(academics.NewExam{
		Name:      "First Term",
		SectionID: f.section,
		SubjectAssessments: []academics.SubjectAssessment{
			{SectionSubjectID: f.math.ID, TotalMarks: 100},
			{SectionSubjectID: f.english.ID, TotalMarks: 50},
		},
	})
	require.NoError(t, err)
	second, err := f.svc.CreateExam(academics.NewExam{
		Name:      "Second Term",
		SectionID: f.section,
		SubjectAssessments: []academics.SubjectAssessment{
			{SectionSubjectID: f.math.ID, TotalMarks: 100},
		},
	})
	require.NoError(t, err)

	firstAssessments, err := f.svc.AssessmentsOfExam(first.ID)
	require.NoError(t, err)
	secondAssessments, err := f.svc.AssessmentsOfExam(second.ID)
	require.NoError(t, err)

	var firstMath, firstEnglish academics.Assessment
	for _, a := range firstAssessments {
		if a.SectionSubjectID == f.math.ID {
			firstMath = a
		} else {
			firstEnglish = a
		}
	}
	secondMath := secondAssessments[0]

	// student 1: fully graded; student 2: graded in one math exam only;
	// student 3: never graded
	grade(t, f, firstMath.ID, []null.Float64{null.Float64From(80), null.Float64From(60), {}})
	grade(t, f, firstEnglish.ID, []null.Float64{null.Float64From(40), {}, {}})
	grade(t, f, secondMath.ID, []null.Float64{null.Float64From(70), {}, {}})

	exam, err := f.svc.CreateConsolidatedExam(academics.NewConsolidatedExam{
		Name:      "Annual Result",
		SectionID: f.section,
		ExamIDs:   []int{first.ID, second.ID},
	})
	require.NoError(t, err)
	assert.True(t, exam.Consolidated)

	assessments, err := f.svc.AssessmentsOfExam(exam.ID)
	require.NoError(t, err)
	require.Len(t, assessments, 2, "one merged assessment per section subject")

	byGroup := make(map[int]academics.Assessment, 2)
	for _, a := range assessments {
		byGroup[a.SectionSubjectID] = a
	}
	assert.Equal(t, float64(200), byGroup[f.math.ID].TotalMarks, "100 + 100")
	assert.Equal(t, float64(50), byGroup[f.english.ID].TotalMarks)

	mathItems, err := f.svc.ItemsOfAssessment(byGroup[f.math.ID].ID)
	require.NoError(t, err)
	require.Len(t, mathItems, 3)

	byStudent := make(map[int]academics.StudentAssessmentItem, 3)
	for _, item := range mathItems {
		byStudent[item.StudentID] = item
	}
	assert.Equal(t, null.Float64From(150), byStudent[f.student[0].ID].ObtainedMarks, "80 + 70")
	assert.Equal(t, null.Float64From(60), byStudent[f.student[1].ID].ObtainedMarks, "graded in one source only")
	assert.False(t, byStudent[f.student[2].ID].ObtainedMarks.Valid, "never graded stays null, not zero")

	englishItems, err := f.svc.ItemsOfAssessment(byGroup[f.english.ID].ID)
	require.NoError(t, err)
	byStudent = make(map[int]academics.StudentAssessmentItem, 3)
	for _, item := range englishItems {
		byStudent[item.StudentID] = item
	}
	assert.Equal(t, null.Float64From(40), byStudent[f.student[0].ID].ObtainedMarks)
	assert.False(t, byStudent[f.student[1].ID].ObtainedMarks.Valid)
	assert.False(t, byStudent[f.student[2].ID].ObtainedMarks.Valid)
}

func TestService_CreateConsolidatedExam_noSourceExams(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateConsolidatedExam(academics.NewConsolidatedExam{
		Name:      "Annual Result",
		SectionID: f.section,
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "exam_ids", vErr.Fields[0].Field)
}

func TestService_CreateConsolidatedExam_unknownExam(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateConsolidatedExam(academics.NewConsolidatedExam{
		Name:      "Annual Result",
		SectionID: f.section,
		ExamIDs:   []int{42},
	})
	assert.Equal(t, academics.ErrExamNotFound, err)
}

func TestService_UpdateAssessmentItems(t *testing.T) {
	f := newFixture(t)

	exam, err := f.svc.CreateExam(academics.NewExam{
		Name:               "Quiz",
		SectionID:          f.section,
		SubjectAssessments: []academics.SubjectAssessment{{SectionSubjectID: f.math.ID, TotalMarks: 20}},
	})
	require.NoError(t, err)
	assessments, err := f.svc.AssessmentsOfExam(exam.ID)
	require.NoError(t, err)
	assessment := assessments[0]
	items, err := f.svc.ItemsOfAssessment(assessment.ID)
	require.NoError(t, err)

	t.Run("marks out of range are rejected with field detail", func(t *testing.T) {
		err := f.svc.UpdateAssessmentItems(assessment.ID, []academics.AssessmentItemUpdate{
			{ItemID: items[0].ID, ObtainedMarks: null.Float64From(25)},
		})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "items[0].obtained_marks", vErr.Fields[0].Field)
	})

	t.Run("unmatched item ids are skipped", func(t *testing.T) {
		err := f.svc.UpdateAssessmentItems(assessment.ID, []academics.AssessmentItemUpdate{
			{ItemID: items[0].ID, ObtainedMarks: null.Float64From(18)},
			{ItemID: 9999, ObtainedMarks: null.Float64From(10)},
		})
		require.NoError(t, err)

		got, err := f.svc.ItemsOfAssessment(assessment.ID)
		require.NoError(t, err)
		assert.Equal(t, null.Float64From(18), got[0].ObtainedMarks)
		assert.False(t, got[1].ObtainedMarks.Valid)
	})

	t.Run("all unmatched is a no-op", func(t *testing.T) {
		err := f.svc.UpdateAssessmentItems(assessment.ID, []academics.AssessmentItemUpdate{
			{ItemID: 9999, ObtainedMarks: null.Float64From(10)},
		})
		assert.NoError(t, err)
	})
}

func TestService_DeactivateExam_cascades(t *testing.T) {
	f := newFixture(t)

	exam, err := f.svc.CreateExam(academics.NewExam{
		Name:               "Quiz",
		SectionID:          f.section,
		SubjectAssessments: []academics.SubjectAssessment{{SectionSubjectID: f.math.ID, TotalMarks: 20}},
	})
	require.NoError(t, err)
	assessments, err := f.svc.AssessmentsOfExam(exam.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateExam(exam.ID))

	_, err = f.svc.GetExam(exam.ID)
	assert.Equal(t, academics.ErrExamNotFound, err)

	active, err := f.svc.AssessmentsOfExam(exam.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	items, err := f.svc.ItemsOfAssessment(assessments[0].ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_AssignSubject_duplicate(t *testing.T) {
	f := newFixture(t)

	subject := testutil.CreateSubject(t, f.repo, "Science")
	_, err := f.svc.AssignSubject(academics.NewSectionSubject{SubjectID: subject.ID, SectionID: f.section})
	require.NoError(t, err)

	_, err = f.svc.AssignSubject(academics.NewSectionSubject{SubjectID: subject.ID, SectionID: f.section})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "subject_id", vErr.Fields[0].Field)
}
