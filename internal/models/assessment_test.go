package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func timePtr(t time.Time) *time.Time { return &t }
func uintPtr(v uint) *uint           { return &v }

// milestoneSequence returns n increasing timestamps a minute apart
func milestoneSequence(n int) []time.Time {
	base := time.Date(2025, time.May, 12, 10, 0, 0, 0, time.UTC)
	stamps := make([]time.Time, n)
	for i := range stamps {
		stamps[i] = base.Add(time.Duration(i) * time.Minute)
	}
	return stamps
}

func TestStateDerivation(t *testing.T) {
	ts := milestoneSequence(8)
	docID := uuid.New()

	tests := []struct {
		name  string
		setup func(a *Assessment)
		want  State
	}{
		{"created only", func(a *Assessment) {}, StateDraft},
		{"synced", func(a *Assessment) {
			a.ContractsSyncedAt = timePtr(ts[1])
		}, StateDataSynced},
		{"contracts validated", func(a *Assessment) {
			a.ContractsSyncedAt = timePtr(ts[1])
			a.ContractsSelectionValidatedAt = timePtr(ts[2])
		}, StateContractsValidated},
		{"submitted", func(a *Assessment) {
			a.ContractsSyncedAt = timePtr(ts[1])
			a.ContractsSelectionValidatedAt = timePtr(ts[2])
			a.SubmittedAt = timePtr(ts[3])
			a.SubmittedBy = uintPtr(7)
		}, StateSubmitted},
		{"grants validated", func(a *Assessment) {
			a.SubmittedAt = timePtr(ts[3])
			a.GrantsSelectionValidatedAt = timePtr(ts[4])
		}, StateGrantsValidated},
		{"decision validated", func(a *Assessment) {
			a.SubmittedAt = timePtr(ts[3])
			a.GrantsSelectionValidatedAt = timePtr(ts[4])
			a.DecisionValidatedAt = timePtr(ts[5])
		}, StateDecisionValidated},
		{"reviewed", func(a *Assessment) {
			a.SubmittedAt = timePtr(ts[3])
			a.DecisionValidatedAt = timePtr(ts[5])
			a.ReviewedAt = timePtr(ts[6])
		}, StateReviewed},
		{"final reviewed", func(a *Assessment) {
			a.SubmittedAt = timePtr(ts[3])
			a.ReviewedAt = timePtr(ts[6])
			a.FinalReviewedAt = timePtr(ts[7])
		}, StateFinalReviewed},
		{"refused wins over everything", func(a *Assessment) {
			a.ContractsSyncedAt = timePtr(ts[1])
			a.SubmittedAt = timePtr(ts[3])
			a.FinalReviewedAt = timePtr(ts[7])
			a.RefusedAt = timePtr(ts[7])
		}, StateRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assessment{
				ID:                  uuid.New(),
				CreatedAt:           ts[0],
				CreatedBy:           1,
				SummaryDocumentFile: &docID,
			}
			tt.setup(a)
			if got := a.State(); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateChronology(t *testing.T) {
	ts := milestoneSequence(4)

	a := &Assessment{
		CreatedAt:         ts[1],
		CreatedBy:         1,
		ContractsSyncedAt: timePtr(ts[0]), // before created_at
	}

	errs := a.Validate()
	if len(errs) != 1 {
		t.Fatalf("Expected 1 validation error, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "contracts_synced_at" {
		t.Errorf("Expected error on contracts_synced_at, got %q", errs[0].Field)
	}
	if !strings.Contains(errs[0].Message, "created_at") {
		t.Errorf("Error should name the preceding milestone, got %q", errs[0].Message)
	}
}

func TestValidateUnsetMilestonesSkipped(t *testing.T) {
	ts := milestoneSequence(8)
	docID := uuid.New()

	// Gaps in the sequence are fine, only set pairs are compared
	a := &Assessment{
		CreatedAt:           ts[0],
		CreatedBy:           1,
		SubmittedAt:         timePtr(ts[3]),
		SubmittedBy:         uintPtr(7),
		GeiqComment:         "RAS",
		SummaryDocumentFile: &docID,
		FinalReviewedAt:     timePtr(ts[7]),
		FinalReviewedBy:     uintPtr(9),
		FinalReviewedByInstitution: func() *uint {
			v := uint(3)
			return &v
		}(),
	}

	if errs := a.Validate(); len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestValidateSubmittedRequirements(t *testing.T) {
	ts := milestoneSequence(4)

	a := &Assessment{
		CreatedAt:   ts[0],
		CreatedBy:   1,
		SubmittedAt: timePtr(ts[3]),
	}

	errs := a.Validate()
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{"submitted_by", "geiq_comment", "documents"} {
		if !fields[want] {
			t.Errorf("Expected a validation error on %s, got %v", want, errs)
		}
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	ts := milestoneSequence(6)

	a := &Assessment{
		CreatedAt:           ts[0],
		CreatedBy:           1,
		SubmittedAt:         timePtr(ts[3]),
		DecisionValidatedAt: timePtr(ts[5]),
		ConventionAmount:    50000,
		GrantedAmount:       80000,
		AdvanceAmount:       -100,
	}

	errs := a.Validate()
	if len(errs) < 4 {
		t.Fatalf("Expected every violation reported together, got %d: %v", len(errs), errs)
	}
	if msg := errs.Error(); !strings.Contains(msg, ";") {
		t.Errorf("Combined message should join violations, got %q", msg)
	}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name        string
		granted     int
		advance     int
		wantBalance int
		wantKind    BalanceKind
	}{
		{"advance exceeded grants", 20000, 80000, -60000, BalanceDue},
		{"grants exceeded advance", 80000, 20000, 60000, BalanceRefundOwed},
		{"settled exactly", 50000, 50000, 0, BalanceDue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assessment{ConventionAmount: 100000, GrantedAmount: tt.granted, AdvanceAmount: tt.advance}
			if got := a.Balance(); got != tt.wantBalance {
				t.Errorf("Balance() = %d, want %d", got, tt.wantBalance)
			}
			if got := a.BalanceKind(); got != tt.wantKind {
				t.Errorf("BalanceKind() = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestResult(t *testing.T) {
	a := &Assessment{ConventionAmount: 100000, GrantedAmount: 80000, AdvanceAmount: 20000}

	result := a.Result()
	if result.Balance != 60000 {
		t.Errorf("Result balance = %d, want 60000", result.Balance)
	}
	if result.BalanceKind != BalanceRefundOwed {
		t.Errorf("Result kind = %q, want %q", result.BalanceKind, BalanceRefundOwed)
	}
	if result.ConventionAmount != 100000 || result.GrantedAmount != 80000 || result.AdvanceAmount != 20000 {
		t.Errorf("Result should carry the amounts unchanged, got %+v", result)
	}
}

func TestValidateDecisionAmounts(t *testing.T) {
	errs := ValidateDecisionAmounts(50000, 80000, 10000, "")
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	if !fields["granted_amount"] {
		t.Error("Expected granted_amount violation")
	}
	if !fields["review_comment"] {
		t.Error("Expected review_comment violation")
	}
	if fields["advance_amount"] {
		t.Errorf("Advance within convention should pass, got %v", errs)
	}

	if errs := ValidateDecisionAmounts(100000, 80000, 20000, "Montants conformes"); len(errs) != 0 {
		t.Errorf("Expected valid decision, got %v", errs)
	}
}

func TestHasAllDocuments(t *testing.T) {
	summary, structure, action := uuid.New(), uuid.New(), uuid.New()

	a := &Assessment{SummaryDocumentFile: &summary, StructureFinancialAssessmentFile: &structure}
	if a.HasAllDocuments() {
		t.Error("Two of three documents should not count as complete")
	}

	a.ActionFinancialAssessmentFile = &action
	if !a.HasAllDocuments() {
		t.Error("All three documents should count as complete")
	}
}
