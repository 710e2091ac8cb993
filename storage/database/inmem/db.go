// Package inmem provides in-memory repositories for service tests.
package inmem

import (
	"sync"

	"github.com/SherMarri/schooly-api/core/academics"
	"github.com/SherMarri/schooly-api/core/finance"
	"github.com/SherMarri/schooly-api/core/school"
	"github.com/SherMarri/schooly-api/core/user"
)

// DB backs every repository with plain maps guarded by one lock, so methods
// that span tables stay atomic.
type DB struct {
	mutex     sync.RWMutex
	forcedErr error

	users    map[int]*user.User
	userSeq  int
	grades   map[int]*school.Grade
	gradeSeq int
	sections map[int]*school.Section
	sectSeq  int

	subjects        map[int]*academics.Subject
	subjectSeq      int
	sectionSubjects map[int]*academics.SectionSubject
	ssSeq           int
	sessions        map[int]*academics.Session
	sessionSeq      int
	exams           map[int]*academics.Exam
	examSeq         int
	assessments     map[int]*academics.Assessment
	assessmentSeq   int
	items           map[int]*academics.StudentAssessmentItem
	itemSeq         int

	structures   map[int]*finance.FeeStructure
	structureSeq int
	challans     map[int]*finance.FeeChallan
	challanSeq   int
	accounts     map[int]*finance.Account
	accountSeq   int
	categories   map[int]*finance.TransactionCategory
	categorySeq  int
	transactions map[int]*finance.Transaction
	txnSeq       int
}

func Open() *DB {
	return &DB{
		users:           make(map[int]*user.User),
		grades:          make(map[int]*school.Grade),
		sections:        make(map[int]*school.Section),
		subjects:        make(map[int]*academics.Subject),
		sectionSubjects: make(map[int]*academics.SectionSubject),
		sessions:        make(map[int]*academics.Session),
		exams:           make(map[int]*academics.Exam),
		assessments:     make(map[int]*academics.Assessment),
		items:           make(map[int]*academics.StudentAssessmentItem),
		structures:      make(map[int]*finance.FeeStructure),
		challans:        make(map[int]*finance.FeeChallan),
		accounts:        make(map[int]*finance.Account),
		categories:      make(map[int]*finance.TransactionCategory),
		transactions:    make(map[int]*finance.Transaction),
	}
}

// ForceErr makes every subsequent write fail with err, without touching any
// table, until cleared with ForceErr(nil). Tests use it to exercise storage
// failures and rollback behavior.
func (db *DB) ForceErr(err error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.forcedErr = err
}

func (db *DB) writeErr() error {
	return db.forcedErr
}
