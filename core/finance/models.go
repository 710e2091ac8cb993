package finance

import (
	"encoding/json"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/SherMarri/schooly-api/core"
)

// Transaction / category types
const (
	Debit  = 1 // income side
	Credit = 2 // expense side
)

// Challan target types
const (
	TargetIndividuals = "individuals"
	TargetGroup       = "group"

	// AllTarget is the sentinel for "every grade" / "every section of the
	// grade" in a group target.
	AllTarget = -1
)

type Account struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description null.String `json:"description"`
	Balance     float64     `json:"balance"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

type TransactionCategory struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Description  null.String `json:"description"`
	CategoryType int         `json:"category_type"` // Debit (income) or Credit (expense)
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

// Transaction is a ledger entry. AccountBalance snapshots the account's
// balance as of this entry.
type Transaction struct {
	ID              int         `json:"id"`
	AccountID       int         `json:"account_id"`
	Title           string      `json:"title"`
	Description     null.String `json:"description"`
	CategoryID      int         `json:"category_id"`
	Amount          float64     `json:"amount"`
	AccountBalance  float64     `json:"account_balance"`
	TransactionType int         `json:"transaction_type"`
	CreatedByID     null.Int    `json:"created_by"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at"` // UTC
}

// FeeStructure is a named billing template. BreakDown is an opaque
// serialized mapping of fee category to amount (e.g.
// {"tuition": 5000, "transport": 500}); it is copied verbatim onto issued
// challans and only ever decoded for display.
type FeeStructure struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description null.String `json:"description"`
	BreakDown   string      `json:"break_down"`
	Total       float64     `json:"total"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

// BreakDownMap decodes the serialized breakdown for display.
func (fs FeeStructure) BreakDownMap() (map[string]float64, error) {
	m := make(map[string]float64)
	if err := json.Unmarshal([]byte(fs.BreakDown), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FeeChallan is one billing-cycle invoice for one student, issued as a value
// snapshot of a fee structure: later edits to the structure never touch it.
type FeeChallan struct {
	ID           int         `json:"id"`
	StudentID    int         `json:"student_id"`
	Reference    string      `json:"reference"`
	BreakDown    string      `json:"break_down"`
	Total        float64     `json:"total"`
	Paid         float64     `json:"paid"`
	Discount     float64     `json:"discount"`
	LateFee      float64     `json:"late_fee"`
	DueDate      time.Time   `json:"due_date"`
	PaidAt       null.Time   `json:"paid_at"`
	PaidBy       null.String `json:"paid_by"`
	Description  null.String `json:"description"`
	ReceivedByID null.Int    `json:"received_by"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

// Settled reports whether payments and discounts cover the challan total.
func (c FeeChallan) Settled() bool {
	return c.Paid+c.Discount >= c.Total
}

// BreakDownMap decodes the snapshotted breakdown for display.
func (c FeeChallan) BreakDownMap() (map[string]float64, error) {
	m := make(map[string]float64)
	if err := json.Unmarshal([]byte(c.BreakDown), &m); err != nil {
		return nil, err
	}
	return m, nil
}

type NewFeeStructure struct {
	Name        string  `json:"name" validate:"required,max=20"`
	Description string  `json:"description" validate:"max=512"`
	BreakDown   string  `json:"break_down" validate:"required,max=2048,json"`
	Total       float64 `json:"total" validate:"required,gt=0"`
}

func (nfs *NewFeeStructure) Validate() error {
	nfs.Name = core.CleanString(nfs.Name)
	return core.TranslateValidationErrors(core.Validate.Struct(nfs))
}

// GroupTarget selects a student population by grade and section; AllTarget
// (-1) widens either axis.
type GroupTarget struct {
	GradeID   int `json:"grade_id"`
	SectionID int `json:"section_id"`
}

// NewChallanBatch fans one fee structure out to a target population.
type NewChallanBatch struct {
	StructureID int         `json:"structure_id" validate:"required"`
	TargetType  string      `json:"target_type" validate:"required,oneof=individuals group"`
	StudentIDs  []int       `json:"student_ids"`
	Group       GroupTarget `json:"group"`
	DueDate     time.Time   `json:"due_date" validate:"required"`
	Description string      `json:"description" validate:"max=128"`
}

func (nb *NewChallanBatch) Validate() error {
	nb.Description = core.CleanString(nb.Description)
	return core.TranslateValidationErrors(core.Validate.Struct(nb))
}

// Payment posts money against a challan. Paid accumulates across payments;
// discount and late fee are overwritten each time.
type Payment struct {
	Paid     float64 `json:"paid" validate:"required,gt=0"`
	Discount float64 `json:"discount" validate:"gte=0"`
	LateFee  float64 `json:"late_fee" validate:"gte=0"`
	PaidBy   string  `json:"paid_by" validate:"omitempty,max=20"`
}

func (p *Payment) Validate() error {
	p.PaidBy = core.CleanString(p.PaidBy)
	return core.TranslateValidationErrors(core.Validate.Struct(p))
}

type NewTransaction struct {
	Title           string  `json:"title" validate:"required,max=20"`
	Description     string  `json:"description" validate:"max=512"`
	CategoryID      int     `json:"category_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	TransactionType int     `json:"transaction_type" validate:"required,oneof=1 2"`
}

func (nt *NewTransaction) Validate() error {
	nt.Title = core.CleanString(nt.Title)
	return core.TranslateValidationErrors(core.Validate.Struct(nt))
}

// ChallanFilter narrows challan queries; zero values mean "no filter".
type ChallanFilter struct {
	StudentID int
	SectionID int
	GradeID   int
	DueFrom   *time.Time
	DueTo     *time.Time
	Status    string // "paid" | "unpaid" | ""
	State     core.LifecycleState
}

// CategorySummary aggregates one category's ledger activity.
type CategorySummary struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	ItemCount    int     `json:"item_count"`
	YearlyTotal  float64 `json:"yearly_total"`
	MonthlyTotal float64 `json:"monthly_total"`
}

// TransactionSummary aggregates one side of the ledger for the current year
// and month.
type TransactionSummary struct {
	YearlyTotal  float64           `json:"yearly_total"`
	MonthlyTotal float64           `json:"monthly_total"`
	AverageItem  float64           `json:"average_item"`
	Categories   []CategorySummary `json:"category_wise_data"`
}
