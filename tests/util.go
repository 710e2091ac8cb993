package testutil

import (
	"testing"
	"time"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/academics"
	"github.com/SherMarri/schooly-api/core/finance"
	"github.com/SherMarri/schooly-api/core/school"
	"github.com/SherMarri/schooly-api/core/user"
)

// Conf returns a test configuration; the operational singletons are zero and
// must be pointed at seeded rows by the caller.
func Conf() *core.Config {
	return &core.Config{
		Debug:            true,
		Env:              "TEST",
		AppName:          "Schooly",
		DefaultFromEmail: "noreply@localhost",
	}
}

func CreateStudent(t *testing.T, repo user.Repository, name, uname string, sectionID int, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		FullName: name,
		Username: uname,
		Email:    uname + "@school.test",
		IsActive: isActive,
		Profile: user.Profile{
			Kind: user.KindStudent,
			Student: &user.StudentProfile{
				RollNumber:   uname,
				SectionID:    sectionID,
				GuardianName: "Guardian of " + name,
				DateEnrolled: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr, err := repo.CreateUser(usr)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return usr
}

func CreateGrade(t *testing.T, repo school.Repository, name string) school.Grade {
	t.Helper()
	now := time.Now().UTC()
	grade, err := repo.CreateGrade(school.Grade{Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateGrade() failed: %v", err)
	}
	return grade
}

func CreateSection(t *testing.T, repo school.Repository, gradeID int, name string) school.Section {
	t.Helper()
	now := time.Now().UTC()
	section, err := repo.CreateSection(school.Section{GradeID: gradeID, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}
	return section
}

func CreateSession(t *testing.T, repo academics.Repository, name string) academics.Session {
	t.Helper()
	now := time.Now().UTC()
	sess, err := repo.CreateSession(academics.Session{
		Name:      name,
		StartDate: now.AddDate(0, -6, 0),
		EndDate:   now.AddDate(0, 6, 0),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

func CreateSubject(t *testing.T, repo academics.Repository, name string) academics.Subject {
	t.Helper()
	now := time.Now().UTC()
	subject, err := repo.CreateSubject(academics.Subject{Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subject
}

func AssignSubject(t *testing.T, repo academics.Repository, subjectID, sectionID int) academics.SectionSubject {
	t.Helper()
	now := time.Now().UTC()
	ss, err := repo.CreateSectionSubject(academics.SectionSubject{
		SubjectID: subjectID,
		SectionID: sectionID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("AssignSubject() failed: %v", err)
	}
	return ss
}

func CreateAccount(t *testing.T, repo finance.Repository, name string, balance float64) finance.Account {
	t.Helper()
	now := time.Now().UTC()
	acc, err := repo.CreateAccount(finance.Account{Name: name, Balance: balance, IsActive: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

func CreateCategory(t *testing.T, repo finance.Repository, name string, categoryType int) finance.TransactionCategory {
	t.Helper()
	now := time.Now().UTC()
	cat, err := repo.CreateCategory(finance.TransactionCategory{Name: name, CategoryType: categoryType, IsActive: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

func CreateFeeStructure(t *testing.T, repo finance.Repository, name, breakDown string, total float64) finance.FeeStructure {
	t.Helper()
	now := time.Now().UTC()
	fs, err := repo.CreateFeeStructure(finance.FeeStructure{
		Name:      name,
		BreakDown: breakDown,
		Total:     total,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateFeeStructure() failed: %v", err)
	}
	return fs
}
