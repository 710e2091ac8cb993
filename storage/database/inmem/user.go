package inmem

import (
	"sort"
	"time"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[int]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return user.User{}, err
	}
	repo.db.userSeq++
	usr.ID = repo.db.userSeq
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(id int) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Username == username || usr.Email == username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) StudentsBySection(sectionID int, state core.LifecycleState) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var students []user.User
	for _, usr := range repo.db.users {
		if usr.IsStudent() && usr.Profile.Student.SectionID == sectionID && state.Matches(usr.IsActive) {
			students = append(students, *usr)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (repo *userRepository) activeStudentIDs(match func(p *user.StudentProfile) bool) []int {
	var ids []int
	for _, usr := range repo.db.users {
		if usr.IsStudent() && usr.IsActive && match(usr.Profile.Student) {
			ids = append(ids, usr.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

func (repo *userRepository) ActiveStudentIDsBySection(sectionID int) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.activeStudentIDs(func(p *user.StudentProfile) bool { return p.SectionID == sectionID }), nil
}

func (repo *userRepository) ActiveStudentIDsByGrade(gradeID int) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.activeStudentIDs(func(p *user.StudentProfile) bool {
		sect, ok := repo.db.sections[p.SectionID]
		return ok && sect.GradeID == gradeID
	}), nil
}

func (repo *userRepository) ActiveStudentIDs() ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.activeStudentIDs(func(*user.StudentProfile) bool { return true }), nil
}

func (repo *userRepository) CountActiveStudents(ids []int) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	count := 0
	for _, id := range ids {
		if usr, ok := repo.db.users[id]; ok && usr.IsStudent() && usr.IsActive {
			count++
		}
	}
	return count, nil
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return user.User{}, err
	}
	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if isActive != nil {
		usr.IsActive = *isActive
	}
	usr.UpdatedAt = time.Now().UTC()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeactivateUsersByID(ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if usr, ok := repo.db.users[id]; ok {
			usr.IsActive = false
			usr.UpdatedAt = now
		}
	}
	return nil
}
