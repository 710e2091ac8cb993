package finance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
)

var (
	// errors
	ErrStructureNotFound = errors.New("fee structure not found")
	ErrChallanNotFound   = errors.New("fee challan not found")
	ErrChallanPaid       = errors.New("fee challan has payments or discounts recorded against it")
	ErrAccountNotFound   = errors.New("account not found")
	ErrCategoryNotFound  = errors.New("transaction category not found")
)

type (
	// Directory resolves student populations for challan fan-out; satisfied
	// by user.Service.
	Directory interface {
		ActiveStudentIDs() ([]int, error)
		ActiveStudentIDsByGrade(gradeID int) ([]int, error)
		ActiveStudentIDsBySection(sectionID int) ([]int, error)
		CountActiveStudents(ids []int) (int, error)
	}

	// Structure resolves roster structure ids named by group targets;
	// satisfied by school.Service.
	Structure interface {
		ActiveGradeExists(id int) (bool, error)
		ActiveSectionExists(id int) (bool, error)
	}

	Repository interface {
		CreateFeeStructure(fs FeeStructure) (FeeStructure, error)
		GetFeeStructureByID(id int, state core.LifecycleState) (FeeStructure, error)
		UpdateFeeStructure(fs FeeStructure) (FeeStructure, error)
		QueryFeeStructures(state core.LifecycleState) ([]FeeStructure, error)
		DeactivateFeeStructure(id int) error

		// CreateChallans inserts the whole batch in one transaction: either
		// every challan commits or none do.
		CreateChallans(challans []FeeChallan) error
		GetChallanByID(id int, state core.LifecycleState) (FeeChallan, error)
		QueryChallans(filter ChallanFilter) ([]FeeChallan, error)
		// RecordPayment applies the payment to the challan, inserts the
		// ledger entry and moves the account balance, all in one
		// transaction. Paid accumulates; discount, late fee and payer are
		// overwritten; paidAt is stamped. The entry's AccountBalance
		// snapshots the balance after the move.
		RecordPayment(challanID int, p Payment, paidAt time.Time, txn Transaction) (FeeChallan, error)
		// DeactivateChallan soft-deletes the challan only while no payment
		// or discount has been recorded; otherwise it returns
		// ErrChallanPaid.
		DeactivateChallan(id int) error

		CreateAccount(acc Account) (Account, error)
		GetAccountByID(id int, state core.LifecycleState) (Account, error)
		CreateCategory(cat TransactionCategory) (TransactionCategory, error)
		GetCategoryByID(id int, state core.LifecycleState) (TransactionCategory, error)
		QueryCategories(categoryType int, state core.LifecycleState) ([]TransactionCategory, error)
		// CreateTransaction inserts the entry and moves the account balance
		// in one transaction, snapshotting the post-move balance on the
		// entry.
		CreateTransaction(txn Transaction) (Transaction, error)
		TransactionsByCategoryType(categoryType int, state core.LifecycleState) ([]Transaction, error)
		// Summarize aggregates one side of the ledger for the year and
		// month containing now.
		Summarize(categoryType int, now time.Time) (TransactionSummary, error)
	}

	Service struct {
		repo Repository
		dir  Directory
		sch  Structure
		conf *core.Config
		log  core.Logger
	}
)

func NewService(repo Repository, dir Directory, sch Structure, conf *core.Config, log core.Logger) *Service {
	if log == nil {
		log = core.NopLogger{}
	}
	return &Service{repo: repo, dir: dir, sch: sch, conf: conf, log: log}
}

func (svc *Service) CreateFeeStructure(nfs NewFeeStructure) (FeeStructure, error) {
	if err := nfs.Validate(); err != nil {
		return FeeStructure{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateFeeStructure(FeeStructure{
		Name:        nfs.Name,
		Description: null.NewString(nfs.Description, nfs.Description != ""),
		BreakDown:   nfs.BreakDown,
		Total:       nfs.Total,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// UpdateFeeStructure replaces the structure's template fields. Challans
// already issued from it keep their snapshotted breakdown and total.
func (svc *Service) UpdateFeeStructure(id int, nfs NewFeeStructure) (FeeStructure, error) {
	if err := nfs.Validate(); err != nil {
		return FeeStructure{}, err
	}
	fs, err := svc.repo.GetFeeStructureByID(id, core.StateActive)
	if err != nil {
		return FeeStructure{}, err
	}
	fs.Name = nfs.Name
	fs.Description = null.NewString(nfs.Description, nfs.Description != "")
	fs.BreakDown = nfs.BreakDown
	fs.Total = nfs.Total
	fs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateFeeStructure(fs)
}

func (svc *Service) FeeStructures(state core.LifecycleState) ([]FeeStructure, error) {
	return svc.repo.QueryFeeStructures(state)
}

func (svc *Service) GetFeeStructure(id int) (FeeStructure, error) {
	return svc.repo.GetFeeStructureByID(id, core.StateAny)
}

func (svc *Service) DeactivateFeeStructure(id int) error {
	return svc.repo.DeactivateFeeStructure(id)
}

// CreateChallans issues one challan per targeted active student, each a
// value snapshot of the fee structure, and returns how many were issued.
// An `individuals` target must name only valid active students; a `group`
// target that resolves to nobody issues nothing and succeeds.
func (svc *Service) CreateChallans(nb NewChallanBatch) (int, error) {
	if err := nb.Validate(); err != nil {
		return 0, err
	}

	structure, err := svc.repo.GetFeeStructureByID(nb.StructureID, core.StateActive)
	if err != nil {
		return 0, err
	}

	studentIDs, err := svc.resolveTarget(nb)
	if err != nil {
		return 0, err
	}
	if len(studentIDs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	challans := make([]FeeChallan, 0, len(studentIDs))
	for _, sid := range studentIDs {
		challans = append(challans, FeeChallan{
			StudentID:   sid,
			Reference:   uuid.New().String(),
			BreakDown:   structure.BreakDown,
			Total:       structure.Total,
			DueDate:     nb.DueDate,
			Description: null.NewString(nb.Description, nb.Description != ""),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err = svc.repo.CreateChallans(challans); err != nil {
		return 0, err
	}

	svc.log.Info(fmt.Sprintf("issued %d fee challans from structure %d", len(challans), structure.ID))
	return len(challans), nil
}

func (svc *Service) resolveTarget(nb NewChallanBatch) ([]int, error) {
	if nb.TargetType == TargetIndividuals {
		ids := dedupe(nb.StudentIDs)
		count, err := svc.dir.CountActiveStudents(ids)
		if err != nil {
			return nil, err
		}
		if count != len(ids) {
			return nil, core.NewValidationError(
				errors.New("invalid student ids provided"),
				core.FieldError{Field: "student_ids", Error: "one or more students do not exist or are inactive"},
			)
		}
		return ids, nil
	}

	if err := svc.checkGroupTarget(nb.Group); err != nil {
		return nil, err
	}
	switch {
	case nb.Group.GradeID == AllTarget:
		return svc.dir.ActiveStudentIDs()
	case nb.Group.SectionID == AllTarget:
		return svc.dir.ActiveStudentIDsByGrade(nb.Group.GradeID)
	default:
		return svc.dir.ActiveStudentIDsBySection(nb.Group.SectionID)
	}
}

// checkGroupTarget verifies that the grade and section a group target names
// exist and are active. A valid target that resolves to no students is not
// an error; an unknown id is.
func (svc *Service) checkGroupTarget(g GroupTarget) error {
	if g.GradeID == AllTarget {
		return nil
	}
	ok, err := svc.sch.ActiveGradeExists(g.GradeID)
	if err != nil {
		return err
	}
	if !ok {
		return core.NewValidationError(
			errors.New("invalid group target"),
			core.FieldError{Field: "group.grade_id", Error: "grade does not exist"},
		)
	}
	if g.SectionID == AllTarget {
		return nil
	}
	ok, err = svc.sch.ActiveSectionExists(g.SectionID)
	if err != nil {
		return err
	}
	if !ok {
		return core.NewValidationError(
			errors.New("invalid group target"),
			core.FieldError{Field: "group.section_id", Error: "section does not exist"},
		)
	}
	return nil
}

func (svc *Service) GetChallan(id int) (FeeChallan, error) {
	return svc.repo.GetChallanByID(id, core.StateAny)
}

func (svc *Service) Challans(filter ChallanFilter) ([]FeeChallan, error) {
	return svc.repo.QueryChallans(filter)
}

// RecordPayment posts a payment against an active challan and the matching
// income entry on the fees ledger. The challan update, the ledger entry and
// the account balance move commit in one transaction, so a failed posting
// never leaves a paid challan without its ledger trail.
func (svc *Service) RecordPayment(challanID int, p Payment) (FeeChallan, error) {
	if err := p.Validate(); err != nil {
		return FeeChallan{}, err
	}

	challan, err := svc.repo.GetChallanByID(challanID, core.StateActive)
	if err != nil {
		return FeeChallan{}, err
	}
	category, err := svc.repo.GetCategoryByID(svc.conf.FeesCategoryID, core.StateActive)
	if err != nil {
		return FeeChallan{}, err
	}
	account, err := svc.repo.GetAccountByID(svc.conf.DefaultAccountID, core.StateActive)
	if err != nil {
		return FeeChallan{}, err
	}

	now := time.Now().UTC()
	challan, err = svc.repo.RecordPayment(challan.ID, p, now, Transaction{
		AccountID:       account.ID,
		Title:           fmt.Sprintf("Invoice #: %d", challan.ID),
		CategoryID:      category.ID,
		Amount:          p.Paid,
		TransactionType: Debit,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return FeeChallan{}, err
	}

	svc.log.Info(fmt.Sprintf("recorded payment of %.2f against challan %d", p.Paid, challan.ID))
	return challan, nil
}

// DeactivateChallan soft-deletes a challan that has no payment or discount
// recorded against it; otherwise it fails with ErrChallanPaid.
func (svc *Service) DeactivateChallan(id int) error {
	return svc.repo.DeactivateChallan(id)
}

func (svc *Service) CreateAccount(name, description string, openingBalance float64) (Account, error) {
	name = core.CleanString(name)
	if name == "" {
		return Account{}, core.NewValidationError(errors.New("invalid account"), core.FieldError{Field: "name", Error: "name is required"})
	}
	now := time.Now().UTC()
	return svc.repo.CreateAccount(Account{
		Name:        name,
		Description: null.NewString(description, description != ""),
		Balance:     openingBalance,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetAccount(id int) (Account, error) {
	return svc.repo.GetAccountByID(id, core.StateAny)
}

func (svc *Service) CreateCategory(name, description string, categoryType int) (TransactionCategory, error) {
	name = core.CleanString(name)
	if name == "" {
		return TransactionCategory{}, core.NewValidationError(errors.New("invalid category"), core.FieldError{Field: "name", Error: "name is required"})
	}
	if categoryType != Debit && categoryType != Credit {
		return TransactionCategory{}, core.NewValidationError(errors.New("invalid category"), core.FieldError{Field: "category_type", Error: "category type must be debit or credit"})
	}
	now := time.Now().UTC()
	return svc.repo.CreateCategory(TransactionCategory{
		Name:         name,
		Description:  null.NewString(description, description != ""),
		CategoryType: categoryType,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) Categories(categoryType int, state core.LifecycleState) ([]TransactionCategory, error) {
	return svc.repo.QueryCategories(categoryType, state)
}

// PostTransaction records a manual ledger entry against the default account.
// A debit raises the account balance, a credit lowers it; the post-move
// balance is snapshotted on the entry.
func (svc *Service) PostTransaction(nt NewTransaction) (Transaction, error) {
	if err := nt.Validate(); err != nil {
		return Transaction{}, err
	}
	if _, err := svc.repo.GetCategoryByID(nt.CategoryID, core.StateActive); err != nil {
		return Transaction{}, err
	}
	account, err := svc.repo.GetAccountByID(svc.conf.DefaultAccountID, core.StateActive)
	if err != nil {
		return Transaction{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateTransaction(Transaction{
		AccountID:       account.ID,
		Title:           nt.Title,
		Description:     null.NewString(nt.Description, nt.Description != ""),
		CategoryID:      nt.CategoryID,
		Amount:          nt.Amount,
		TransactionType: nt.TransactionType,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (svc *Service) Transactions(categoryType int, state core.LifecycleState) ([]Transaction, error) {
	return svc.repo.TransactionsByCategoryType(categoryType, state)
}

func (svc *Service) TransactionSummary(categoryType int) (TransactionSummary, error) {
	return svc.repo.Summarize(categoryType, time.Now().UTC())
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
