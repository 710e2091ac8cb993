package finance_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/finance"
	"github.com/SherMarri/schooly-api/core/school"
	"github.com/SherMarri/schooly-api/core/user"
	"github.com/SherMarri/schooly-api/storage/database/inmem"
	testutil "github.com/SherMarri/schooly-api/tests"
)

type fixture struct {
	db        *inmem.DB
	repo      finance.Repository
	svc       *finance.Service
	sch       *school.Service
	conf      *core.Config
	grade     int
	sectionA  int
	sectionB  int
	structure finance.FeeStructure
	student   [3]user.User
}

// newFixture seeds one grade with two sections, three active students (two
// in section A, one in section B), a fee structure and the fees ledger
// singletons.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := inmem.Open()
	repo := inmem.NewFinanceRepository(db)
	usrRepo := inmem.NewUserRepository(db)
	schRepo := inmem.NewSchoolRepository(db)
	conf := testutil.Conf()

	grade := testutil.CreateGrade(t, schRepo, "Class 5")
	sectionA := testutil.CreateSection(t, schRepo, grade.ID, "A")
	sectionB := testutil.CreateSection(t, schRepo, grade.ID, "B")

	account := testutil.CreateAccount(t, repo, "School Account", 1000)
	category := testutil.CreateCategory(t, repo, "Fees", finance.Debit)
	conf.DefaultAccountID = account.ID
	conf.FeesCategoryID = category.ID

	f := &fixture{
		db:        db,
		repo:      repo,
		sch:       school.NewService(schRepo),
		conf:      conf,
		grade:     grade.ID,
		sectionA:  sectionA.ID,
		sectionB:  sectionB.ID,
		structure: testutil.CreateFeeStructure(t, repo, "Monthly", `{"tuition": 5000, "transport": 500}`, 5500),
	}
	f.student[0] = testutil.CreateStudent(t, usrRepo, "Ali Hassan", "ali01", sectionA.ID, true)
	f.student[1] = testutil.CreateStudent(t, usrRepo, "Sara Khan", "sara02", sectionA.ID, true)
	f.student[2] = testutil.CreateStudent(t, usrRepo, "Omar Riaz", "omar03", sectionB.ID, true)

	usrSvc := user.NewService(usrRepo, nil, conf)
	f.svc = finance.NewService(repo, usrSvc, f.sch, conf, nil)
	return f
}

func dueDate() time.Time {
	return time.Now().UTC().AddDate(0, 1, 0)
}

func TestService_CreateChallans_individuals(t *testing.T) {
	f := newFixture(t)

	issued, err := f.svc.CreateChallans(finance.NewChallanBatch{
		StructureID: f.structure.ID,
		TargetType:  finance.TargetIndividuals,
		StudentIDs:  []int{f.student[0].ID, f.student[1].ID},
		DueDate:     dueDate(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, issued)

	challans, err := f.svc.Challans(finance.ChallanFilter{})
	require.NoError(t, err)
	require.Len(t, challans, 2)
	for _, c := range challans {
		assert.Equal(t, f.structure.BreakDown, c.BreakDown)
		assert.Equal(t, f.structure.Total, c.Total)
		assert.Zero(t, c.Paid)
		assert.NotEmpty(t, c.Reference)
		assert.False(t, c.PaidAt.Valid)
	}
	assert.NotEqual(t, challans[0].Reference, challans[1].Reference)
}

func TestService_CreateChallans_individualsMustAllResolve(t *testing.T) {
	f := newFixture(t)

	withdrawn := f.student[2]
	usrRepo := inmem.NewUserRepository(f.db)
	require.NoError(t, usrRepo.DeactivateUsersByID(withdrawn.ID))

	tests := []struct {
		name string
		ids  []int
	}{
		{name: "unknown student", ids: []int{f.student[0].ID, 999}},
		{name: "inactive student", ids: []int{f.student[0].ID, withdrawn.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateChallans(finance.NewChallanBatch{
				StructureID: f.structure.ID,
				TargetType:  finance.TargetIndividuals,
				StudentIDs:  tt.ids,
				DueDate:     dueDate(),
			})
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, "student_ids", vErr.Fields[0].Field)

			challans, err := f.svc.Challans(finance.ChallanFilter{})
			require.NoError(t, err)
			assert.Empty(t, challans, "a rejected batch must issue nothing")
		})
	}
}

func TestService_CreateChallans_group(t *testing.T) {
	tests := []struct {
		name   string
		target func(f *fixture) finance.GroupTarget
		want   int
	}{
		{
			name:   "whole school",
			target: func(*fixture) finance.GroupTarget { return finance.GroupTarget{GradeID: finance.AllTarget} },
			want:   3,
		},
		{
			name: "whole grade",
			target: func(f *fixture) finance.GroupTarget {
				return finance.GroupTarget{GradeID: f.grade, SectionID: finance.AllTarget}
			},
			want: 3,
		},
		{
			name: "one section",
			target: func(f *fixture) finance.GroupTarget {
				return finance.GroupTarget{GradeID: f.grade, SectionID: f.sectionA}
			},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			issued, err := f.svc.CreateChallans(finance.NewChallanBatch{
				StructureID: f.structure.ID,
				TargetType:  finance.TargetGroup,
				Group:       tt.target(f),
				DueDate:     dueDate(),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, issued)
		})
	}
}

func TestService_CreateChallans_unknownGroupTarget(t *testing.T) {
	f := newFixture(t)

	gone, err := f.sch.CreateGrade(school.NewGrade{Name: "Closed"})
	require.NoError(t, err)
	require.NoError(t, f.sch.DeactivateGrade(gone.ID))

	tests := []struct {
		name      string
		group     finance.GroupTarget
		wantField string
	}{
		{
			name:      "unknown grade",
			group:     finance.GroupTarget{GradeID: 9999, SectionID: finance.AllTarget},
			wantField: "group.grade_id",
		},
		{
			name:      "inactive grade",
			group:     finance.GroupTarget{GradeID: gone.ID, SectionID: finance.AllTarget},
			wantField: "group.grade_id",
		},
		{
			name:      "unknown section",
			group:     finance.GroupTarget{GradeID: f.grade, SectionID: 9999},
			wantField: "group.section_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateChallans(finance.NewChallanBatch{
				StructureID: f.structure.ID,
				TargetType:  finance.TargetGroup,
				Group:       tt.group,
				DueDate:     dueDate(),
			})
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)

			challans, err := f.svc.Challans(finance.ChallanFilter{})
			require.NoError(t, err)
			assert.Empty(t, challans)
		})
	}
}

func TestService_CreateChallans_storageFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)

	forced := errors.New("storage down")
	f.db.ForceErr(forced)
	_, err := f.svc.CreateChallans(finance.NewChallanBatch{
		StructureID: f.structure.ID,
		TargetType:  finance.TargetGroup,
		Group:       finance.GroupTarget{GradeID: finance.AllTarget},
		DueDate:     dueDate(),
	})
	assert.Equal(t, forced, err)
	f.db.ForceErr(nil)

	challans, err := f.svc.Challans(finance.ChallanFilter{})
	require.NoError(t, err)
	assert.Empty(t, challans, "a failed batch must issue nothing")
}

func TestService_CreateChallans_emptyGroupIsNoop(t *testing.T) {
	f := newFixture(t)

	schRepo := inmem.NewSchoolRepository(f.db)
	emptyGrade := testutil.CreateGrade(t, schRepo, "Class 7")

	issued, err := f.svc.CreateChallans(finance.NewChallanBatch{
		StructureID: f.structure.ID,
		TargetType:  finance.TargetGroup,
		Group:       finance.GroupTarget{GradeID: emptyGrade.ID, SectionID: finance.AllTarget},
		DueDate:     dueDate(),
	})
	require.NoError(t, err)
	assert.Zero(t, issued)
}

func TestService_CreateChallans_targetValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		nb        finance.NewChallanBatch
		wantField string
	}{
		{
			name:      "individuals without student ids",
			nb:        finance.NewChallanBatch{StructureID: f.structure.ID, TargetType: finance.TargetIndividuals, DueDate: dueDate()},
			wantField: "student_ids",
		},
		{
			name:      "group without grade",
			nb:        finance.NewChallanBatch{StructureID: f.structure.ID, TargetType: finance.TargetGroup, DueDate: dueDate()},
			wantField: "group.grade_id",
		},
		{
			name: "group with grade but no section",
			nb: finance.NewChallanBatch{
				StructureID: f.structure.ID,
				TargetType:  finance.TargetGroup,
				Group:       finance.GroupTarget{GradeID: f.grade},
				DueDate:     dueDate(),
			},
			wantField: "group.section_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateChallans(tt.nb)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_ChallansSnapshotFeeStructure(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateChallans(finance.NewChallanBatch{
		StructureID: f.structure.ID,
		TargetType:  finance.TargetIndividuals,
		StudentIDs:  []int{f.student[0].ID},
		DueDate:     dueDate(),
	})
	require.NoError(t, err)

	// raising the fee later must not touch issued challans
	_, err = f.svc.UpdateFeeStructure(f.structure.ID, finance.NewFeeStructure{
		Name:      "Monthly",
		BreakDown: `{"tuition": 9000}`,
		Total:     9000,
	})
	require.NoError(t, err)

	challans, err := f.svc.Challans(finance.ChallanFilter{})
	require.NoError(t, err)
	require.Len(t, challans, 1)
	assert.Equal(t, `{"tuition": 5000, "transport": 500}`, challans[0].BreakDown)
	assert.Equal(t, float64(5500), challans[0].Total)
}

func issueOne(t *testing.T, f *fixture) finance.FeeChallan {
	t.Helper()
	_, err := f.svc.CreateChallans(finance.NewChallanBatch{
		StructureID: f.structure.ID,
		TargetType:  finance.TargetIndividuals,
		StudentIDs:  []int{f.student[0].ID},
		DueDate:     dueDate(),
	})
	require.NoError(t, err)
	challans, err := f.svc.Challans(finance.ChallanFilter{})
	require.NoError(t, err)
	require.Len(t, challans, 1)
	return challans[0]
}

func TestService_RecordPayment(t *testing.T) {
	f := newFixture(t)
	challan := issueOne(t, f)

	got, err := f.svc.RecordPayment(challan.ID, finance.Payment{Paid: 100, Discount: 20, PaidBy: "Guardian"})
	require.NoError(t, err)
	assert.Equal(t, float64(100), got.Paid)
	assert.Equal(t, float64(20), got.Discount)
	assert.True(t, got.PaidAt.Valid)
	assert.Equal(t, "Guardian", got.PaidBy.String)

	// a second payment accumulates paid and overwrites the discount
	got, err = f.svc.RecordPayment(challan.ID, finance.Payment{Paid: 50, Discount: 30})
	require.NoError(t, err)
	assert.Equal(t, float64(150), got.Paid)
	assert.Equal(t, float64(30), got.Discount)

	// each payment lands on the fees ledger and moves the account
	txns, err := f.svc.Transactions(finance.Debit, core.StateActive)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, float64(100), txns[0].Amount)
	assert.Equal(t, float64(1100), txns[0].AccountBalance)
	assert.Equal(t, float64(50), txns[1].Amount)
	assert.Equal(t, float64(1150), txns[1].AccountBalance)

	account, err := f.svc.GetAccount(f.conf.DefaultAccountID)
	require.NoError(t, err)
	assert.Equal(t, float64(1150), account.Balance)
}

func TestService_RecordPayment_failureLeavesEverything(t *testing.T) {
	f := newFixture(t)
	challan := issueOne(t, f)

	forced := errors.New("storage down")
	f.db.ForceErr(forced)
	_, err := f.svc.RecordPayment(challan.ID, finance.Payment{Paid: 100})
	assert.Equal(t, forced, err)
	f.db.ForceErr(nil)

	got, err := f.svc.GetChallan(challan.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Paid, "a failed payment must not touch the challan")

	account, err := f.svc.GetAccount(f.conf.DefaultAccountID)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), account.Balance, "a failed payment must not move the account")

	txns, err := f.svc.Transactions(finance.Debit, core.StateActive)
	require.NoError(t, err)
	assert.Empty(t, txns, "a failed payment must not post to the ledger")
}

func TestService_DeactivateChallan(t *testing.T) {
	f := newFixture(t)
	challan := issueOne(t, f)

	t.Run("paid challan cannot be removed", func(t *testing.T) {
		_, err := f.svc.RecordPayment(challan.ID, finance.Payment{Paid: 100})
		require.NoError(t, err)
		assert.Equal(t, finance.ErrChallanPaid, f.svc.DeactivateChallan(challan.ID))
	})

	t.Run("untouched challan is removed", func(t *testing.T) {
		_, err := f.svc.CreateChallans(finance.NewChallanBatch{
			StructureID: f.structure.ID,
			TargetType:  finance.TargetIndividuals,
			StudentIDs:  []int{f.student[1].ID},
			DueDate:     dueDate(),
		})
		require.NoError(t, err)
		challans, err := f.svc.Challans(finance.ChallanFilter{StudentID: f.student[1].ID})
		require.NoError(t, err)
		require.Len(t, challans, 1)

		require.NoError(t, f.svc.DeactivateChallan(challans[0].ID))
		challans, err = f.svc.Challans(finance.ChallanFilter{StudentID: f.student[1].ID})
		require.NoError(t, err)
		assert.Empty(t, challans)
	})
}

func TestService_PostTransaction(t *testing.T) {
	f := newFixture(t)
	expenses := testutil.CreateCategory(t, f.repo, "Utilities", finance.Credit)

	txn, err := f.svc.PostTransaction(finance.NewTransaction{
		Title:           "Electricity",
		CategoryID:      expenses.ID,
		Amount:          200,
		TransactionType: finance.Credit,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(800), txn.AccountBalance, "a credit lowers the balance")

	txn, err = f.svc.PostTransaction(finance.NewTransaction{
		Title:           "Donation",
		CategoryID:      f.conf.FeesCategoryID,
		Amount:          500,
		TransactionType: finance.Debit,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1300), txn.AccountBalance, "a debit raises the balance")
}

func TestService_TransactionSummary(t *testing.T) {
	f := newFixture(t)
	challan := issueOne(t, f)

	_, err := f.svc.RecordPayment(challan.ID, finance.Payment{Paid: 100})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(challan.ID, finance.Payment{Paid: 300})
	require.NoError(t, err)

	summary, err := f.svc.TransactionSummary(finance.Debit)
	require.NoError(t, err)
	assert.Equal(t, float64(400), summary.YearlyTotal)
	assert.Equal(t, float64(400), summary.MonthlyTotal)
	assert.Equal(t, float64(200), summary.AverageItem)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, "Fees", summary.Categories[0].Name)
	assert.Equal(t, 2, summary.Categories[0].ItemCount)
}

func TestService_CreateFeeStructure_validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFeeStructure(finance.NewFeeStructure{
		Name:      "Broken",
		BreakDown: "not json",
		Total:     100,
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
}
