package inmem

import (
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/finance"
)

type financeRepository struct {
	db *DB
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo *financeRepository) CreateFeeStructure(fs finance.FeeStructure) (finance.FeeStructure, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return finance.FeeStructure{}, err
	}
	repo.db.structureSeq++
	fs.ID = repo.db.structureSeq
	repo.db.structures[fs.ID] = &fs
	return fs, nil
}

func (repo *financeRepository) GetFeeStructureByID(id int, state core.LifecycleState) (finance.FeeStructure, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if fs, ok := repo.db.structures[id]; ok && state.Matches(fs.IsActive) {
		return *fs, nil
	}
	return finance.FeeStructure{}, finance.ErrStructureNotFound
}

func (repo *financeRepository) UpdateFeeStructure(fs finance.FeeStructure) (finance.FeeStructure, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return finance.FeeStructure{}, err
	}
	if _, ok := repo.db.structures[fs.ID]; !ok {
		return finance.FeeStructure{}, finance.ErrStructureNotFound
	}
	repo.db.structures[fs.ID] = &fs
	return fs, nil
}

func (repo *financeRepository) QueryFeeStructures(state core.LifecycleState) ([]finance.FeeStructure, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var fss []finance.FeeStructure
	for _, fs := range repo.db.structures {
		if state.Matches(fs.IsActive) {
			fss = append(fss, *fs)
		}
	}
	sort.Slice(fss, func(i, j int) bool { return fss[i].Name < fss[j].Name })
	return fss, nil
}

func (repo *financeRepository) DeactivateFeeStructure(id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	if fs, ok := repo.db.structures[id]; ok {
		fs.IsActive = false
		fs.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// CreateChallans persists the whole batch or nothing.
func (repo *financeRepository) CreateChallans(challans []finance.FeeChallan) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	for _, c := range challans {
		repo.db.challanSeq++
		c.ID = repo.db.challanSeq
		challan := c
		repo.db.challans[c.ID] = &challan
	}
	return nil
}

func (repo *financeRepository) GetChallanByID(id int, state core.LifecycleState) (finance.FeeChallan, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.getChallan(id, state)
}

func (repo *financeRepository) getChallan(id int, state core.LifecycleState) (finance.FeeChallan, error) {
	if c, ok := repo.db.challans[id]; ok && state.Matches(c.IsActive) {
		return *c, nil
	}
	return finance.FeeChallan{}, finance.ErrChallanNotFound
}

func (repo *financeRepository) QueryChallans(filter finance.ChallanFilter) ([]finance.FeeChallan, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var challans []finance.FeeChallan
	for _, c := range repo.db.challans {
		if !filter.State.Matches(c.IsActive) {
			continue
		}
		if filter.StudentID != 0 && c.StudentID != filter.StudentID {
			continue
		}
		if filter.SectionID != 0 || filter.GradeID != 0 {
			usr, ok := repo.db.users[c.StudentID]
			if !ok || !usr.IsStudent() {
				continue
			}
			if filter.SectionID != 0 && usr.Profile.Student.SectionID != filter.SectionID {
				continue
			}
			if filter.GradeID != 0 {
				sect, ok := repo.db.sections[usr.Profile.Student.SectionID]
				if !ok || sect.GradeID != filter.GradeID {
					continue
				}
			}
		}
		if filter.DueFrom != nil && c.DueDate.Before(*filter.DueFrom) {
			continue
		}
		if filter.DueTo != nil && c.DueDate.After(*filter.DueTo) {
			continue
		}
		if filter.Status == "paid" && !c.Settled() {
			continue
		}
		if filter.Status == "unpaid" && c.Settled() {
			continue
		}
		challans = append(challans, *c)
	}
	sort.Slice(challans, func(i, j int) bool { return challans[i].ID < challans[j].ID })
	return challans, nil
}

// RecordPayment applies the challan update, the ledger entry and the account
// balance move together; any failure leaves all three untouched.
func (repo *financeRepository) RecordPayment(challanID int, p finance.Payment, paidAt time.Time, txn finance.Transaction) (finance.FeeChallan, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return finance.FeeChallan{}, err
	}
	challan, ok := repo.db.challans[challanID]
	if !ok || !challan.IsActive {
		return finance.FeeChallan{}, finance.ErrChallanNotFound
	}
	account, ok := repo.db.accounts[txn.AccountID]
	if !ok || !account.IsActive {
		return finance.FeeChallan{}, finance.ErrAccountNotFound
	}

	account.Balance += txn.Amount
	account.UpdatedAt = paidAt
	txn.AccountBalance = account.Balance
	repo.db.txnSeq++
	txn.ID = repo.db.txnSeq
	repo.db.transactions[txn.ID] = &txn

	challan.Paid += p.Paid
	challan.Discount = p.Discount
	challan.LateFee = p.LateFee
	challan.PaidAt = null.TimeFrom(paidAt)
	challan.PaidBy = null.NewString(p.PaidBy, p.PaidBy != "")
	challan.UpdatedAt = paidAt
	return *challan, nil
}

func (repo *financeRepository) DeactivateChallan(id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return err
	}
	challan, ok := repo.db.challans[id]
	if !ok || !challan.IsActive {
		return finance.ErrChallanNotFound
	}
	if challan.Paid != 0 || challan.Discount != 0 {
		return finance.ErrChallanPaid
	}
	challan.IsActive = false
	challan.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *financeRepository) CreateAccount(acc finance.Account) (finance.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return finance.Account{}, err
	}
	repo.db.accountSeq++
	acc.ID = repo.db.accountSeq
	repo.db.accounts[acc.ID] = &acc
	return acc, nil
}

func (repo *financeRepository) GetAccountByID(id int, state core.LifecycleState) (finance.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.db.accounts[id]; ok && state.Matches(acc.IsActive) {
		return *acc, nil
	}
	return finance.Account{}, finance.ErrAccountNotFound
}

func (repo *financeRepository) CreateCategory(cat finance.TransactionCategory) (finance.TransactionCategory, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return finance.TransactionCategory{}, err
	}
	repo.db.categorySeq++
	cat.ID = repo.db.categorySeq
	repo.db.categories[cat.ID] = &cat
	return cat, nil
}

func (repo *financeRepository) GetCategoryByID(id int, state core.LifecycleState) (finance.TransactionCategory, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cat, ok := repo.db.categories[id]; ok && state.Matches(cat.IsActive) {
		return *cat, nil
	}
	return finance.TransactionCategory{}, finance.ErrCategoryNotFound
}

func (repo *financeRepository) QueryCategories(categoryType int, state core.LifecycleState) ([]finance.TransactionCategory, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cats []finance.TransactionCategory
	for _, cat := range repo.db.categories {
		if cat.CategoryType == categoryType && state.Matches(cat.IsActive) {
			cats = append(cats, *cat)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (repo *financeRepository) CreateTransaction(txn finance.Transaction) (finance.Transaction, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.writeErr(); err != nil {
		return finance.Transaction{}, err
	}
	account, ok := repo.db.accounts[txn.AccountID]
	if !ok || !account.IsActive {
		return finance.Transaction{}, finance.ErrAccountNotFound
	}

	amount := txn.Amount
	if txn.TransactionType == finance.Credit {
		amount = -amount
	}
	account.Balance += amount
	account.UpdatedAt = time.Now().UTC()
	txn.AccountBalance = account.Balance
	repo.db.txnSeq++
	txn.ID = repo.db.txnSeq
	repo.db.transactions[txn.ID] = &txn
	return txn, nil
}

func (repo *financeRepository) TransactionsByCategoryType(categoryType int, state core.LifecycleState) ([]finance.Transaction, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var txns []finance.Transaction
	for _, txn := range repo.db.transactions {
		cat, ok := repo.db.categories[txn.CategoryID]
		if !ok || cat.CategoryType != categoryType {
			continue
		}
		if state.Matches(txn.IsActive) {
			txns = append(txns, *txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })
	return txns, nil
}

func (repo *financeRepository) Summarize(categoryType int, now time.Time) (finance.TransactionSummary, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	now = now.UTC()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	byCat := make(map[int]*finance.CategorySummary)
	var summary finance.TransactionSummary
	var items int

	for _, cat := range repo.db.categories {
		if cat.CategoryType == categoryType && cat.IsActive {
			byCat[cat.ID] = &finance.CategorySummary{ID: cat.ID, Name: cat.Name}
		}
	}
	for _, txn := range repo.db.transactions {
		cs, ok := byCat[txn.CategoryID]
		if !ok || !txn.IsActive || txn.CreatedAt.Before(yearStart) {
			continue
		}
		cs.ItemCount++
		cs.YearlyTotal += txn.Amount
		summary.YearlyTotal += txn.Amount
		items++
		if !txn.CreatedAt.Before(monthStart) {
			cs.MonthlyTotal += txn.Amount
			summary.MonthlyTotal += txn.Amount
		}
	}
	for _, cs := range byCat {
		summary.Categories = append(summary.Categories, *cs)
	}
	sort.Slice(summary.Categories, func(i, j int) bool { return summary.Categories[i].Name < summary.Categories[j].Name })
	if items > 0 {
		summary.AverageItem = summary.YearlyTotal / float64(items)
	}
	return summary, nil
}
