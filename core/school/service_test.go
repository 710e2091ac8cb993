package school_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/school"
	"github.com/SherMarri/schooly-api/storage/database/inmem"
)

func newService() *school.Service {
	return school.NewService(inmem.NewSchoolRepository(inmem.Open()))
}

func TestService_CreateGrade(t *testing.T) {
	svc := newService()

	grade, err := svc.CreateGrade(school.NewGrade{Name: "Class 5"})
	require.NoError(t, err)
	assert.NotZero(t, grade.ID)
	assert.True(t, grade.IsActive)

	t.Run("name required", func(t *testing.T) {
		_, err := svc.CreateGrade(school.NewGrade{Name: "   "})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "name", vErr.Fields[0].Field)
	})
}

func TestService_CreateSection(t *testing.T) {
	svc := newService()
	grade, err := svc.CreateGrade(school.NewGrade{Name: "Class 5"})
	require.NoError(t, err)

	section, err := svc.CreateSection(school.NewSection{GradeID: grade.ID, Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, grade.ID, section.GradeID)

	t.Run("duplicate name within the grade", func(t *testing.T) {
		_, err := svc.CreateSection(school.NewSection{GradeID: grade.ID, Name: "A"})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "name", vErr.Fields[0].Field)
	})

	t.Run("same name in another grade", func(t *testing.T) {
		other, err := svc.CreateGrade(school.NewGrade{Name: "Class 6"})
		require.NoError(t, err)
		_, err = svc.CreateSection(school.NewSection{GradeID: other.ID, Name: "A"})
		assert.NoError(t, err)
	})

	t.Run("unknown grade", func(t *testing.T) {
		_, err := svc.CreateSection(school.NewSection{GradeID: 999, Name: "B"})
		assert.Equal(t, school.ErrGradeNotFound, err)
	})

	t.Run("inactive grade", func(t *testing.T) {
		gone, err := svc.CreateGrade(school.NewGrade{Name: "Class 7"})
		require.NoError(t, err)
		require.NoError(t, svc.DeactivateGrade(gone.ID))
		_, err = svc.CreateSection(school.NewSection{GradeID: gone.ID, Name: "A"})
		assert.Equal(t, school.ErrGradeNotFound, err)
	})
}

func TestService_SectionsOfGrade(t *testing.T) {
	svc := newService()
	grade, err := svc.CreateGrade(school.NewGrade{Name: "Class 5"})
	require.NoError(t, err)
	a, err := svc.CreateSection(school.NewSection{GradeID: grade.ID, Name: "A"})
	require.NoError(t, err)
	b, err := svc.CreateSection(school.NewSection{GradeID: grade.ID, Name: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateSection(b.ID))

	active, err := svc.SectionsOfGrade(grade.ID, core.StateActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	all, err := svc.SectionsOfGrade(grade.ID, core.StateAny)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
