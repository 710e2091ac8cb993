package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/SherMarri/schooly-api/core"
)

// Profile kinds
const (
	KindAdmin   = "admin"
	KindStaff   = "staff"
	KindTeacher = "teacher"
	KindStudent = "student"
)

var AllKinds = []string{KindAdmin, KindStaff, KindTeacher, KindStudent}

// StudentProfile carries a student's enrollment attributes. A student
// belongs to exactly one section at a time.
type StudentProfile struct {
	RollNumber      string    `json:"roll_number"`
	SectionID       int       `json:"section_id"`
	GuardianName    string    `json:"guardian_name"`
	GuardianContact string    `json:"guardian_contact"`
	Gender          string    `json:"gender"`
	DateEnrolled    time.Time `json:"date_enrolled"` // UTC
}

type TeacherProfile struct {
	DateHired time.Time `json:"date_hired"` // UTC
	Salary    float64   `json:"salary"`
}

type StaffProfile struct {
	DateHired   time.Time `json:"date_hired"` // UTC
	Salary      float64   `json:"salary"`
	Designation string    `json:"designation"`
}

type AdminProfile struct {
	DateHired time.Time `json:"date_hired"` // UTC
	Salary    float64   `json:"salary"`
}

// Profile is a sum type over the per-kind info variants: Kind names the
// variant and exactly one of the pointers is set. This replaces the original
// generic (content_type, object_id) reference, which traded away type safety
// for nothing we need.
type Profile struct {
	Kind    string          `json:"kind"`
	Student *StudentProfile `json:"student,omitempty"`
	Teacher *TeacherProfile `json:"teacher,omitempty"`
	Staff   *StaffProfile   `json:"staff,omitempty"`
	Admin   *AdminProfile   `json:"admin,omitempty"`
}

// Valid reports whether exactly the variant named by Kind is set.
func (p Profile) Valid() bool {
	switch p.Kind {
	case KindStudent:
		return p.Student != nil && p.Teacher == nil && p.Staff == nil && p.Admin == nil
	case KindTeacher:
		return p.Teacher != nil && p.Student == nil && p.Staff == nil && p.Admin == nil
	case KindStaff:
		return p.Staff != nil && p.Student == nil && p.Teacher == nil && p.Admin == nil
	case KindAdmin:
		return p.Admin != nil && p.Student == nil && p.Teacher == nil && p.Staff == nil
	}
	return false
}

type User struct {
	ID           int       `json:"id"`
	FullName     string    `json:"fullname"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Contact      string    `json:"contact"`
	IsActive     bool      `json:"is_active"`
	Profile      Profile   `json:"profile"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsStudent() bool { return u.Profile.Kind == KindStudent }
func (u *User) IsTeacher() bool { return u.Profile.Kind == KindTeacher }
func (u *User) IsAdmin() bool   { return u.Profile.Kind == KindAdmin }

// NewStudent contains information needed to enroll a new student.
type NewStudent struct {
	FullName        string `json:"fullname" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"omitempty"`
	RollNumber      string `json:"roll_number" validate:"required"`
	SectionID       int    `json:"section_id" validate:"required"`
	GuardianName    string `json:"guardian_name" validate:"required"`
	GuardianContact string `json:"guardian_contact" validate:"omitempty,max=20"`
	Gender          string `json:"gender" validate:"omitempty,oneof=male female other"`
}

func (ns *NewStudent) Validate() error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return core.TranslateValidationErrors(core.Validate.Struct(ns))
}

// NewStaffMember contains information needed to create a teacher, staff or
// admin account.
type NewStaffMember struct {
	FullName    string  `json:"fullname" validate:"required"`
	Username    string  `json:"username" validate:"omitempty,min=6,alphanum"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Password    string  `json:"password" validate:"required"`
	Kind        string  `json:"kind" validate:"required,oneof=admin staff teacher"`
	Salary      float64 `json:"salary" validate:"omitempty,gte=0"`
	Designation string  `json:"designation" validate:"required_if=Kind staff"`
}

func (nsm *NewStaffMember) Validate() error {
	nsm.FullName = core.CleanString(nsm.FullName)
	nsm.Username = core.CleanString(nsm.Username, true /* lower */)
	nsm.Email = core.CleanString(nsm.Email, true /* lower */)
	return core.TranslateValidationErrors(core.Validate.Struct(nsm))
}
