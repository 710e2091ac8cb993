package user_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/user"
	emailsvc "github.com/SherMarri/schooly-api/services/email"
	"github.com/SherMarri/schooly-api/storage/database/inmem"
	testutil "github.com/SherMarri/schooly-api/tests"
)

func newService(t *testing.T) (*user.Service, *inmem.DB, int) {
	t.Helper()
	db := inmem.Open()
	schRepo := inmem.NewSchoolRepository(db)
	grade := testutil.CreateGrade(t, schRepo, "Class 5")
	section := testutil.CreateSection(t, schRepo, grade.ID, "A")

	emailsvc.SentMessages = nil
	conf := testutil.Conf()
	svc := user.NewService(inmem.NewUserRepository(db), emailsvc.NewConsoleServiceMock(conf), conf)
	return svc, db, section.ID
}

func newStudent(sectionID int) user.NewStudent {
	return user.NewStudent{
		FullName:        "Ali Hassan",
		Username:        "alihassan",
		Email:           "ali@test.example.com",
		RollNumber:      "05-A-01",
		SectionID:       sectionID,
		GuardianName:    "Hassan Raza",
		GuardianContact: "0300-1234567",
		Gender:          "male",
	}
}

func TestService_EnrollStudent(t *testing.T) {
	svc, _, sectionID := newService(t)

	usr, err := svc.EnrollStudent(newStudent(sectionID))
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)
	assert.True(t, usr.IsActive)
	require.True(t, usr.IsStudent())
	assert.Equal(t, "05-A-01", usr.Profile.Student.RollNumber)
	assert.Equal(t, sectionID, usr.Profile.Student.SectionID)
	assert.False(t, usr.Profile.Student.DateEnrolled.IsZero())

	require.Len(t, emailsvc.SentMessages, 1, "enrollment sends a welcome notice")
	assert.Equal(t, usr.Email, emailsvc.SentMessages[0].To[0].Address)
}

func TestService_EnrollStudent_errors(t *testing.T) {
	svc, _, sectionID := newService(t)
	_, err := svc.EnrollStudent(newStudent(sectionID))
	require.NoError(t, err)

	tests := []struct {
		name      string
		mutate    func(ns *user.NewStudent)
		wantField string
	}{
		{
			name:      "duplicate username",
			mutate:    func(ns *user.NewStudent) { ns.Email = "other@test.example.com" },
			wantField: "username",
		},
		{
			name:      "duplicate email",
			mutate:    func(ns *user.NewStudent) { ns.Username = "aliraza99" },
			wantField: "email",
		},
		{
			name: "missing guardian name",
			mutate: func(ns *user.NewStudent) {
				ns.Username, ns.Email = "aliraza99", "other@test.example.com"
				ns.GuardianName = ""
			},
			wantField: "guardian_name",
		},
		{
			name: "short username",
			mutate: func(ns *user.NewStudent) {
				ns.Username, ns.Email = "ali", "other@test.example.com"
			},
			wantField: "username",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := newStudent(sectionID)
			tt.mutate(&ns)
			_, err := svc.EnrollStudent(ns)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_CreateStaffMember(t *testing.T) {
	svc, _, _ := newService(t)

	tests := []struct {
		name string
		nsm  user.NewStaffMember
		chk  func(t *testing.T, usr user.User)
	}{
		{
			name: "teacher",
			nsm:  user.NewStaffMember{FullName: "Sara Khan", Username: "sarakhan", Password: "G0#druid!", Kind: user.KindTeacher, Salary: 45000},
			chk: func(t *testing.T, usr user.User) {
				require.True(t, usr.IsTeacher())
				assert.Equal(t, float64(45000), usr.Profile.Teacher.Salary)
			},
		},
		{
			name: "staff with designation",
			nsm:  user.NewStaffMember{FullName: "Omar Riaz", Username: "omarriaz", Password: "G0#druid!", Kind: user.KindStaff, Designation: "Accountant"},
			chk: func(t *testing.T, usr user.User) {
				require.Equal(t, user.KindStaff, usr.Profile.Kind)
				assert.Equal(t, "Accountant", usr.Profile.Staff.Designation)
			},
		},
		{
			name: "admin",
			nsm:  user.NewStaffMember{FullName: "Root", Username: "rootadmin", Password: "G0#druid!", Kind: user.KindAdmin},
			chk: func(t *testing.T, usr user.User) {
				assert.True(t, usr.IsAdmin())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.CreateStaffMember(tt.nsm)
			require.NoError(t, err)
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword("G0#druid!"))
			tt.chk(t, usr)
		})
	}

	t.Run("staff requires a designation", func(t *testing.T) {
		_, err := svc.CreateStaffMember(user.NewStaffMember{
			FullName: "No Role", Username: "norole01", Password: "G0#druid!", Kind: user.KindStaff,
		})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "designation", vErr.Fields[0].Field)
	})

	t.Run("student kind rejected", func(t *testing.T) {
		_, err := svc.CreateStaffMember(user.NewStaffMember{
			FullName: "Nope", Username: "nope1234", Password: "G0#druid!", Kind: user.KindStudent,
		})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "kind", vErr.Fields[0].Field)
	})
}

func TestService_ResetPassword(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.CreateStaffMember(user.NewStaffMember{
		FullName: "Sara Khan", Username: "sarakhan", Password: "G0#druid!", Kind: user.KindTeacher,
	})
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword("sarakhan", "N3w#druid!"))
	usr, err := svc.GetByUsernameOrEmail("sarakhan")
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("N3w#druid!"))
	assert.Error(t, usr.CheckPassword("G0#druid!"))

	assert.Equal(t, user.ErrNotFound, svc.ResetPassword("nobody", "N3w#druid!"))
}

func TestService_Withdraw(t *testing.T) {
	svc, _, sectionID := newService(t)

	usr, err := svc.EnrollStudent(newStudent(sectionID))
	require.NoError(t, err)
	other := newStudent(sectionID)
	other.Username, other.Email, other.RollNumber = "sarakhan", "sara@test.example.com", "05-A-02"
	usr2, err := svc.EnrollStudent(other)
	require.NoError(t, err)

	require.NoError(t, svc.Withdraw(usr.ID))

	ids, err := svc.ActiveStudentIDsBySection(sectionID)
	require.NoError(t, err)
	assert.Equal(t, []int{usr2.ID}, ids)

	// the record survives withdrawal
	got, err := svc.GetByID(usr.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	count, err := svc.CountActiveStudents([]int{usr.ID, usr2.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
