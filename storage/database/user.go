package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

type userRow struct {
	ID              int          `db:"id"`
	FullName        string       `db:"fullname"`
	Username        null.String  `db:"username"`
	Email           null.String  `db:"email"`
	Contact         null.String  `db:"contact"`
	Kind            string       `db:"kind"`
	IsActive        bool         `db:"is_active"`
	PasswordHash    null.Bytes   `db:"password_hash"`
	RollNumber      null.String  `db:"roll_number"`
	SectionID       null.Int     `db:"section_id"`
	GuardianName    null.String  `db:"guardian_name"`
	GuardianContact null.String  `db:"guardian_contact"`
	Gender          null.String  `db:"gender"`
	DateEnrolled    null.Time    `db:"date_enrolled"`
	DateHired       null.Time    `db:"date_hired"`
	Salary          null.Float64 `db:"salary"`
	Designation     null.String  `db:"designation"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (repo userRepository) toRow(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		FullName:     usr.FullName,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		Contact:      null.NewString(usr.Contact, usr.Contact != ""),
		Kind:         usr.Profile.Kind,
		IsActive:     usr.IsActive,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
	switch {
	case usr.Profile.Student != nil:
		p := usr.Profile.Student
		row.RollNumber = null.StringFrom(p.RollNumber)
		row.SectionID = null.IntFrom(p.SectionID)
		row.GuardianName = null.NewString(p.GuardianName, p.GuardianName != "")
		row.GuardianContact = null.NewString(p.GuardianContact, p.GuardianContact != "")
		row.Gender = null.NewString(p.Gender, p.Gender != "")
		row.DateEnrolled = null.TimeFrom(p.DateEnrolled.UTC())
	case usr.Profile.Teacher != nil:
		p := usr.Profile.Teacher
		row.DateHired = null.TimeFrom(p.DateHired.UTC())
		row.Salary = null.Float64From(p.Salary)
	case usr.Profile.Staff != nil:
		p := usr.Profile.Staff
		row.DateHired = null.TimeFrom(p.DateHired.UTC())
		row.Salary = null.Float64From(p.Salary)
		row.Designation = null.NewString(p.Designation, p.Designation != "")
	case usr.Profile.Admin != nil:
		p := usr.Profile.Admin
		row.DateHired = null.TimeFrom(p.DateHired.UTC())
		row.Salary = null.Float64From(p.Salary)
	}
	return row
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		FullName:     row.FullName,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Contact:      row.Contact.String,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Profile:      user.Profile{Kind: row.Kind},
	}
	switch row.Kind {
	case user.KindStudent:
		usr.Profile.Student = &user.StudentProfile{
			RollNumber:      row.RollNumber.String,
			SectionID:       int(row.SectionID.Int),
			GuardianName:    row.GuardianName.String,
			GuardianContact: row.GuardianContact.String,
			Gender:          row.Gender.String,
			DateEnrolled:    row.DateEnrolled.Time,
		}
	case user.KindTeacher:
		usr.Profile.Teacher = &user.TeacherProfile{DateHired: row.DateHired.Time, Salary: row.Salary.Float64}
	case user.KindStaff:
		usr.Profile.Staff = &user.StaffProfile{DateHired: row.DateHired.Time, Salary: row.Salary.Float64, Designation: row.Designation.String}
	case user.KindAdmin:
		usr.Profile.Admin = &user.AdminProfile{DateHired: row.DateHired.Time, Salary: row.Salary.Float64}
	}
	return usr
}

func (repo userRepository) fromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users
}

func (repo userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	if username == "" && email == "" {
		return nil
	}

	query := `SELECT username, email FROM "user" WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += " AND id NOT IN (?)"
		q, inArgs, err := sqlx.In(query, username, email, ids)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		query, args = q, inArgs
	}

	var rows []userRow
	if err := repo.db.Select(&rows, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(usr user.User) (user.User, error) {
	row := repo.toRow(usr)
	query := `
INSERT INTO "user" (
	fullname, username, email, contact, kind, is_active, password_hash,
	roll_number, section_id, guardian_name, guardian_contact, gender, date_enrolled,
	date_hired, salary, designation, created_at, updated_at
) VALUES (
	:fullname, :username, :email, :contact, :kind, :is_active, :password_hash,
	:roll_number, :section_id, :guardian_name, :guardian_contact, :gender, :date_enrolled,
	:date_hired, :salary, :designation, :created_at, :updated_at
) RETURNING id`

	stmt, err := repo.db.PrepareNamed(query)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	defer func() { _ = stmt.Close() }()

	if err = stmt.Get(&row.ID, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) GetUserByID(id int) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, `SELECT * FROM "user" WHERE id = $1`, id); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by ID")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	var row userRow
	query := `SELECT * FROM "user" WHERE username = $1 OR email = $1`
	if err := repo.db.Get(&row, query, username); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) StudentsBySection(sectionID int, state core.LifecycleState) ([]user.User, error) {
	var rows []userRow
	query := `SELECT * FROM "user" WHERE kind = 'student' AND section_id = $1` +
		stateClause(state, "is_active") + " ORDER BY roll_number"
	if err := repo.db.Select(&rows, query, sectionID); err != nil {
		return nil, errors.Wrap(err, "querying students by section")
	}
	return repo.fromRows(rows), nil
}

func (repo userRepository) ActiveStudentIDsBySection(sectionID int) ([]int, error) {
	var ids []int
	query := `SELECT id FROM "user" WHERE kind = 'student' AND is_active = true AND section_id = $1`
	if err := repo.db.Select(&ids, query, sectionID); err != nil {
		return nil, errors.Wrap(err, "querying student ids by section")
	}
	return ids, nil
}

func (repo userRepository) ActiveStudentIDsByGrade(gradeID int) ([]int, error) {
	var ids []int
	query := `
SELECT u.id FROM "user" u
JOIN section s ON s.id = u.section_id
WHERE u.kind = 'student' AND u.is_active = true AND s.grade_id = $1`
	if err := repo.db.Select(&ids, query, gradeID); err != nil {
		return nil, errors.Wrap(err, "querying student ids by grade")
	}
	return ids, nil
}

func (repo userRepository) ActiveStudentIDs() ([]int, error) {
	var ids []int
	query := `SELECT id FROM "user" WHERE kind = 'student' AND is_active = true`
	if err := repo.db.Select(&ids, query); err != nil {
		return nil, errors.Wrap(err, "querying student ids")
	}
	return ids, nil
}

func (repo userRepository) CountActiveStudents(ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM "user" WHERE kind = 'student' AND is_active = true AND id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	var count int
	if err = repo.db.Get(&count, repo.db.Rebind(query), args...); err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return count, nil
}

func (repo userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	if isActive != nil {
		usr.IsActive = *isActive
	}
	usr.UpdatedAt = time.Now().UTC()
	row := repo.toRow(usr)
	query := `
UPDATE "user" SET
	fullname = :fullname, username = :username, email = :email, contact = :contact,
	is_active = :is_active, password_hash = :password_hash,
	roll_number = :roll_number, section_id = :section_id, guardian_name = :guardian_name,
	guardian_contact = :guardian_contact, gender = :gender,
	date_hired = :date_hired, salary = :salary, designation = :designation,
	updated_at = :updated_at
WHERE id = :id`
	if _, err := repo.db.NamedExec(query, row); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) DeactivateUsersByID(ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE "user" SET is_active = false, updated_at = ? WHERE id IN (?)`, time.Now().UTC(), ids)
	if err != nil {
		return errors.Wrap(err, "deactivating users")
	}
	if _, err = repo.db.Exec(repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deactivating users")
	}
	return nil
}
