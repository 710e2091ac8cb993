package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/finance"
)

type financeRepository struct {
	db *sqlx.DB
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *sqlx.DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo financeRepository) CreateFeeStructure(fs finance.FeeStructure) (finance.FeeStructure, error) {
	query := `
INSERT INTO fee_structure (name, description, break_down, total, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := repo.db.QueryRow(query, fs.Name, fs.Description, fs.BreakDown, fs.Total,
		fs.IsActive, fs.CreatedAt.UTC(), fs.UpdatedAt.UTC()).Scan(&fs.ID)
	if err != nil {
		return finance.FeeStructure{}, errors.Wrap(err, "inserting fee structure")
	}
	return fs, nil
}

func (repo financeRepository) GetFeeStructureByID(id int, state core.LifecycleState) (finance.FeeStructure, error) {
	var fs finance.FeeStructure
	query := `SELECT * FROM fee_structure WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&fs, query, id); err != nil {
		return finance.FeeStructure{}, trapNoRowsErr(err, finance.ErrStructureNotFound, "finding fee structure")
	}
	return fs, nil
}

func (repo financeRepository) UpdateFeeStructure(fs finance.FeeStructure) (finance.FeeStructure, error) {
	query := `
UPDATE fee_structure SET name = $1, description = $2, break_down = $3, total = $4, updated_at = $5
WHERE id = $6`
	if _, err := repo.db.Exec(query, fs.Name, fs.Description, fs.BreakDown, fs.Total, fs.UpdatedAt.UTC(), fs.ID); err != nil {
		return finance.FeeStructure{}, errors.Wrap(err, "updating fee structure")
	}
	return fs, nil
}

func (repo financeRepository) QueryFeeStructures(state core.LifecycleState) ([]finance.FeeStructure, error) {
	var fss []finance.FeeStructure
	query := `SELECT * FROM fee_structure WHERE true` + stateClause(state, "is_active") + " ORDER BY name"
	if err := repo.db.Select(&fss, query); err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	return fss, nil
}

func (repo financeRepository) DeactivateFeeStructure(id int) error {
	if _, err := repo.db.Exec(`UPDATE fee_structure SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return errors.Wrap(err, "deactivating fee structure")
	}
	return nil
}

// CreateChallans bulk-inserts the batch through COPY in one transaction.
func (repo financeRepository) CreateChallans(challans []finance.FeeChallan) error {
	if len(challans) == 0 {
		return nil
	}
	tx, err := repo.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(pq.CopyIn("fee_challan",
		"student_id", "reference", "break_down", "total", "paid", "discount", "late_fee",
		"due_date", "paid_at", "paid_by", "description", "received_by_id", "is_active", "created_at", "updated_at"))
	if err != nil {
		return errors.Wrap(err, "preparing challan copy")
	}
	for _, c := range challans {
		if _, err = stmt.Exec(c.StudentID, c.Reference, c.BreakDown, c.Total, c.Paid, c.Discount, c.LateFee,
			c.DueDate.UTC(), c.PaidAt, c.PaidBy, c.Description, c.ReceivedByID, c.IsActive,
			c.CreatedAt.UTC(), c.UpdatedAt.UTC()); err != nil {
			_ = stmt.Close()
			return errors.Wrap(err, "copying challans")
		}
	}
	if _, err = stmt.Exec(); err != nil {
		_ = stmt.Close()
		return errors.Wrap(err, "flushing challan copy")
	}
	if err = stmt.Close(); err != nil {
		return errors.Wrap(err, "closing challan copy")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing challans")
	}
	return nil
}

func (repo financeRepository) GetChallanByID(id int, state core.LifecycleState) (finance.FeeChallan, error) {
	var c finance.FeeChallan
	query := `SELECT * FROM fee_challan WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&c, query, id); err != nil {
		return finance.FeeChallan{}, trapNoRowsErr(err, finance.ErrChallanNotFound, "finding fee challan")
	}
	return c, nil
}

func (repo financeRepository) QueryChallans(filter finance.ChallanFilter) ([]finance.FeeChallan, error) {
	query := `
SELECT c.* FROM fee_challan c
JOIN "user" u ON u.id = c.student_id
LEFT JOIN section s ON s.id = u.section_id
WHERE true` + stateClause(filter.State, "c.is_active")
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.StudentID != 0 {
		query += " AND c.student_id = " + arg(filter.StudentID)
	}
	if filter.SectionID != 0 {
		query += " AND u.section_id = " + arg(filter.SectionID)
	}
	if filter.GradeID != 0 {
		query += " AND s.grade_id = " + arg(filter.GradeID)
	}
	if filter.DueFrom != nil {
		query += " AND c.due_date >= " + arg(filter.DueFrom.UTC())
	}
	if filter.DueTo != nil {
		query += " AND c.due_date <= " + arg(filter.DueTo.UTC())
	}
	switch filter.Status {
	case "paid":
		query += " AND c.paid + c.discount >= c.total"
	case "unpaid":
		query += " AND c.paid + c.discount < c.total"
	}
	query += " ORDER BY c.due_date DESC, c.id"

	var challans []finance.FeeChallan
	if err := repo.db.Select(&challans, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying fee challans")
	}
	return challans, nil
}

// RecordPayment applies the payment, posts the ledger entry and moves the
// account balance in one transaction, locking the account row for the
// balance math.
func (repo financeRepository) RecordPayment(challanID int, p finance.Payment, paidAt time.Time, txn finance.Transaction) (finance.FeeChallan, error) {
	tx, err := repo.db.Beginx()
	if err != nil {
		return finance.FeeChallan{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := moveBalance(tx, txn.AccountID, txn.Amount)
	if err != nil {
		return finance.FeeChallan{}, err
	}
	txn.AccountBalance = balance
	if err = insertTransaction(tx, txn); err != nil {
		return finance.FeeChallan{}, err
	}

	var challan finance.FeeChallan
	query := `
UPDATE fee_challan SET
	paid = paid + $1, discount = $2, late_fee = $3, paid_at = $4, paid_by = $5, updated_at = $6
WHERE id = $7 AND is_active = true
RETURNING *`
	paidBy := interface{}(nil)
	if p.PaidBy != "" {
		paidBy = p.PaidBy
	}
	err = tx.Get(&challan, query, p.Paid, p.Discount, p.LateFee, paidAt.UTC(), paidBy, paidAt.UTC(), challanID)
	if err != nil {
		return finance.FeeChallan{}, trapNoRowsErr(err, finance.ErrChallanNotFound, "updating fee challan")
	}

	if err = tx.Commit(); err != nil {
		return finance.FeeChallan{}, errors.Wrap(err, "committing payment")
	}
	return challan, nil
}

func (repo financeRepository) DeactivateChallan(id int) error {
	res, err := repo.db.Exec(`
UPDATE fee_challan SET is_active = false, updated_at = $1
WHERE id = $2 AND is_active = true AND paid = 0 AND discount = 0`, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deactivating fee challan")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err = repo.GetChallanByID(id, core.StateActive); err != nil {
			return err
		}
		return finance.ErrChallanPaid
	}
	return nil
}

func (repo financeRepository) CreateAccount(acc finance.Account) (finance.Account, error) {
	query := `
INSERT INTO account (name, description, balance, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRow(query, acc.Name, acc.Description, acc.Balance, acc.IsActive,
		acc.CreatedAt.UTC(), acc.UpdatedAt.UTC()).Scan(&acc.ID)
	if err != nil {
		return finance.Account{}, errors.Wrap(err, "inserting account")
	}
	return acc, nil
}

func (repo financeRepository) GetAccountByID(id int, state core.LifecycleState) (finance.Account, error) {
	var acc finance.Account
	query := `SELECT * FROM account WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&acc, query, id); err != nil {
		return finance.Account{}, trapNoRowsErr(err, finance.ErrAccountNotFound, "finding account")
	}
	return acc, nil
}

func (repo financeRepository) CreateCategory(cat finance.TransactionCategory) (finance.TransactionCategory, error) {
	query := `
INSERT INTO transaction_category (name, description, category_type, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRow(query, cat.Name, cat.Description, cat.CategoryType, cat.IsActive,
		cat.CreatedAt.UTC(), cat.UpdatedAt.UTC()).Scan(&cat.ID)
	if err != nil {
		return finance.TransactionCategory{}, errors.Wrap(err, "inserting transaction category")
	}
	return cat, nil
}

func (repo financeRepository) GetCategoryByID(id int, state core.LifecycleState) (finance.TransactionCategory, error) {
	var cat finance.TransactionCategory
	query := `SELECT * FROM transaction_category WHERE id = $1` + stateClause(state, "is_active")
	if err := repo.db.Get(&cat, query, id); err != nil {
		return finance.TransactionCategory{}, trapNoRowsErr(err, finance.ErrCategoryNotFound, "finding transaction category")
	}
	return cat, nil
}

func (repo financeRepository) QueryCategories(categoryType int, state core.LifecycleState) ([]finance.TransactionCategory, error) {
	var cats []finance.TransactionCategory
	query := `SELECT * FROM transaction_category WHERE category_type = $1` + stateClause(state, "is_active") + " ORDER BY name"
	if err := repo.db.Select(&cats, query, categoryType); err != nil {
		return nil, errors.Wrap(err, "querying transaction categories")
	}
	return cats, nil
}

// CreateTransaction inserts the entry and moves the account balance in one
// transaction. A debit raises the balance, a credit lowers it.
func (repo financeRepository) CreateTransaction(txn finance.Transaction) (finance.Transaction, error) {
	tx, err := repo.db.Beginx()
	if err != nil {
		return finance.Transaction{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	amount := txn.Amount
	if txn.TransactionType == finance.Credit {
		amount = -amount
	}
	balance, err := moveBalance(tx, txn.AccountID, amount)
	if err != nil {
		return finance.Transaction{}, err
	}
	txn.AccountBalance = balance
	if err = insertTransaction(tx, txn); err != nil {
		return finance.Transaction{}, err
	}

	if err = tx.Commit(); err != nil {
		return finance.Transaction{}, errors.Wrap(err, "committing ledger entry")
	}
	return txn, nil
}

func (repo financeRepository) TransactionsByCategoryType(categoryType int, state core.LifecycleState) ([]finance.Transaction, error) {
	query := `
SELECT t.* FROM "transaction" t
JOIN transaction_category c ON c.id = t.category_id
WHERE c.category_type = $1` + stateClause(state, "t.is_active") + " ORDER BY t.created_at DESC, t.id"
	var txns []finance.Transaction
	if err := repo.db.Select(&txns, query, categoryType); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	return txns, nil
}

func (repo financeRepository) Summarize(categoryType int, now time.Time) (finance.TransactionSummary, error) {
	now = now.UTC()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `
SELECT c.id, c.name,
	COUNT(t.id) FILTER (WHERE t.created_at >= $2) AS item_count,
	COALESCE(SUM(t.amount) FILTER (WHERE t.created_at >= $2), 0) AS yearly_total,
	COALESCE(SUM(t.amount) FILTER (WHERE t.created_at >= $3), 0) AS monthly_total
FROM transaction_category c
LEFT JOIN "transaction" t ON t.category_id = c.id AND t.is_active = true
WHERE c.category_type = $1 AND c.is_active = true
GROUP BY c.id, c.name
ORDER BY c.name`

	var cats []finance.CategorySummary
	if err := repo.db.Select(&cats, query, categoryType, yearStart, monthStart); err != nil {
		return finance.TransactionSummary{}, errors.Wrap(err, "summarizing transactions")
	}

	summary := finance.TransactionSummary{Categories: cats}
	var items int
	for _, cat := range cats {
		summary.YearlyTotal += cat.YearlyTotal
		summary.MonthlyTotal += cat.MonthlyTotal
		items += cat.ItemCount
	}
	if items > 0 {
		summary.AverageItem = summary.YearlyTotal / float64(items)
	}
	return summary, nil
}

// moveBalance locks the account row, applies the delta and returns the new
// balance.
func moveBalance(tx *sqlx.Tx, accountID int, delta float64) (float64, error) {
	var balance float64
	if err := tx.Get(&balance, `SELECT balance FROM account WHERE id = $1 FOR UPDATE`, accountID); err != nil {
		return 0, trapNoRowsErr(err, finance.ErrAccountNotFound, "locking account")
	}
	balance += delta
	if _, err := tx.Exec(`UPDATE account SET balance = $1, updated_at = $2 WHERE id = $3`, balance, time.Now().UTC(), accountID); err != nil {
		return 0, errors.Wrap(err, "updating account balance")
	}
	return balance, nil
}

func insertTransaction(tx *sqlx.Tx, txn finance.Transaction) error {
	query := `
INSERT INTO "transaction" (
	account_id, title, description, category_id, amount, account_balance,
	transaction_type, created_by_id, is_active, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := tx.Exec(query, txn.AccountID, txn.Title, txn.Description, txn.CategoryID,
		txn.Amount, txn.AccountBalance, txn.TransactionType, txn.CreatedByID,
		txn.IsActive, txn.CreatedAt.UTC(), txn.UpdatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "inserting ledger entry")
	}
	return nil
}
