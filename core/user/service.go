package user

import (
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/SherMarri/schooly-api/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(username, email string, excludedUsers ...User) error
		CreateUser(user User) (User, error)
		GetUserByID(id int) (User, error)
		GetUserByUsernameOrEmail(username string) (User, error)
		// StudentsBySection returns the students enrolled in a section,
		// filtered by lifecycle state.
		StudentsBySection(sectionID int, state core.LifecycleState) ([]User, error)
		// Directory queries; consumed by the academics and finance engines.
		ActiveStudentIDsBySection(sectionID int) ([]int, error)
		ActiveStudentIDsByGrade(gradeID int) ([]int, error)
		ActiveStudentIDs() ([]int, error)
		// CountActiveStudents counts how many of the given ids resolve to
		// active student users.
		CountActiveStudents(ids []int) (int, error)
		UpdateUser(user User, isActive *bool) (User, error)
		DeactivateUsersByID(ids ...int) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) checkUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// EnrollStudent creates an active student account. A welcome notice is sent
// to the guardian's email when one is on file.
func (svc *Service) EnrollStudent(ns NewStudent) (User, error) {
	if err := ns.Validate(); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ns.Username, ns.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		FullName: ns.FullName,
		Username: ns.Username,
		Email:    ns.Email,
		Contact:  ns.GuardianContact,
		IsActive: true,
		Profile: Profile{
			Kind: KindStudent,
			Student: &StudentProfile{
				RollNumber:      ns.RollNumber,
				SectionID:       ns.SectionID,
				GuardianName:    ns.GuardianName,
				GuardianContact: ns.GuardianContact,
				Gender:          ns.Gender,
				DateEnrolled:    now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ns.Password != "" {
		if err := usr.SetPassword(ns.Password); err != nil {
			return User{}, err
		}
	}

	usr, err := svc.repo.CreateUser(usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// CreateStaffMember creates an active teacher, staff or admin account.
func (svc *Service) CreateStaffMember(nsm NewStaffMember) (User, error) {
	if err := nsm.Validate(); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(nsm.Username, nsm.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		FullName:  nsm.FullName,
		Username:  nsm.Username,
		Email:     nsm.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch nsm.Kind {
	case KindTeacher:
		usr.Profile = Profile{Kind: KindTeacher, Teacher: &TeacherProfile{DateHired: now, Salary: nsm.Salary}}
	case KindStaff:
		usr.Profile = Profile{Kind: KindStaff, Staff: &StaffProfile{DateHired: now, Salary: nsm.Salary, Designation: nsm.Designation}}
	case KindAdmin:
		usr.Profile = Profile{Kind: KindAdmin, Admin: &AdminProfile{DateHired: now, Salary: nsm.Salary}}
	}
	if err := usr.SetPassword(nsm.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(usr)
}

func (svc *Service) GetByID(id int) (User, error) {
	return svc.repo.GetUserByID(id)
}

func (svc *Service) GetByUsernameOrEmail(uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(core.CleanString(uname, true /* lower */))
}

func (svc *Service) StudentsBySection(sectionID int, state core.LifecycleState) ([]User, error) {
	return svc.repo.StudentsBySection(sectionID, state)
}

// Directory queries. These make *Service satisfy the directory interfaces
// declared by the academics and finance packages.

func (svc *Service) ActiveStudentIDsBySection(sectionID int) ([]int, error) {
	return svc.repo.ActiveStudentIDsBySection(sectionID)
}

func (svc *Service) ActiveStudentIDsByGrade(gradeID int) ([]int, error) {
	return svc.repo.ActiveStudentIDsByGrade(gradeID)
}

func (svc *Service) ActiveStudentIDs() ([]int, error) {
	return svc.repo.ActiveStudentIDs()
}

func (svc *Service) CountActiveStudents(ids []int) (int, error) {
	return svc.repo.CountActiveStudents(ids)
}

// ResetPassword replaces the password of the account matching the given
// username or email.
func (svc *Service) ResetPassword(uname, pwd string) error {
	usr, err := svc.GetByUsernameOrEmail(uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = svc.repo.UpdateUser(usr, nil)
	return err
}

// Withdraw deactivates student accounts. Withdrawal never deletes: the
// record stays for transcripts and outstanding challans.
func (svc *Service) Withdraw(ids ...int) error {
	return svc.repo.DeactivateUsersByID(ids...)
}

func (svc *Service) sendWelcomeMail(usr User) {
	if svc.mailSvc == nil || usr.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject: "Welcome to " + svc.conf.AppName,
		BodyStr: fmt.Sprintf(
			"Dear %s,\n\nYour enrollment is complete. Your roll number is %s.\n",
			usr.FullName, usr.Profile.Student.RollNumber,
		),
	}
	svc.mailSvc.SendMessages(msg)
}
