package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the derived lifecycle state of an assessment. It is computed from
// the milestone timestamps, never stored.
type State string

const (
	StateDraft              State = "DRAFT"
	StateDataSynced         State = "DATA_SYNCED"
	StateContractsValidated State = "CONTRACTS_VALIDATED"
	StateSubmitted          State = "SUBMITTED"
	StateGrantsValidated    State = "GRANTS_VALIDATED"
	StateDecisionValidated  State = "DECISION_VALIDATED"
	StateReviewed           State = "REVIEWED"
	StateFinalReviewed      State = "FINAL_REVIEWED"
	StateRefused            State = "REFUSED"
)

// BalanceKind labels the direction of the financial settlement
type BalanceKind string

const (
	BalanceRefundOwed BalanceKind = "refund_owed" // reste à restituer
	BalanceDue        BalanceKind = "balance_due" // reste à verser
)

// Assessment is the aggregate root for one GEIQ's annual report in one
// campaign. Milestones are nullable timestamps set in chronological order;
// the current state derives from which are set.
type Assessment struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	CampaignID        uint            `json:"campaign_id" db:"campaign_id"`
	LabelGeiqID       int             `json:"label_geiq_id" db:"label_geiq_id"`
	LabelGeiqName     string          `json:"label_geiq_name" db:"label_geiq_name"`
	LabelAntennaNames []string        `json:"label_antenna_names" db:"label_antenna_names"`
	LabelRates        json.RawMessage `json:"label_rates,omitempty" db:"label_rates"`
	WithMainGeiq      bool            `json:"with_main_geiq" db:"with_main_geiq"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	CreatedBy uint      `json:"created_by" db:"created_by"`

	ContractsSyncedAt             *time.Time `json:"contracts_synced_at,omitempty" db:"contracts_synced_at"`
	ContractsSelectionValidatedAt *time.Time `json:"contracts_selection_validated_at,omitempty" db:"contracts_selection_validated_at"`
	SubmittedAt                   *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
	SubmittedBy                   *uint      `json:"submitted_by,omitempty" db:"submitted_by"`
	GrantsSelectionValidatedAt    *time.Time `json:"grants_selection_validated_at,omitempty" db:"grants_selection_validated_at"`
	DecisionValidatedAt           *time.Time `json:"decision_validated_at,omitempty" db:"decision_validated_at"`
	ReviewedAt                    *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy                    *uint      `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedByInstitution         *uint      `json:"reviewed_by_institution,omitempty" db:"reviewed_by_institution"`
	FinalReviewedAt               *time.Time `json:"final_reviewed_at,omitempty" db:"final_reviewed_at"`
	FinalReviewedBy               *uint      `json:"final_reviewed_by,omitempty" db:"final_reviewed_by"`
	FinalReviewedByInstitution    *uint      `json:"final_reviewed_by_institution,omitempty" db:"final_reviewed_by_institution"`
	RefusedAt                     *time.Time `json:"refused_at,omitempty" db:"refused_at"`
	RefusalReason                 string     `json:"refusal_reason,omitempty" db:"refusal_reason"`

	ConventionAmount int `json:"convention_amount" db:"convention_amount"`
	GrantedAmount    int `json:"granted_amount" db:"granted_amount"`
	AdvanceAmount    int `json:"advance_amount" db:"advance_amount"`

	GeiqComment   string `json:"geiq_comment" db:"geiq_comment"`
	ReviewComment string `json:"review_comment" db:"review_comment"`

	SummaryDocumentFile              *uuid.UUID `json:"summary_document_file,omitempty" db:"summary_document_file"`
	StructureFinancialAssessmentFile *uuid.UUID `json:"structure_financial_assessment_file,omitempty" db:"structure_financial_assessment_file"`
	ActionFinancialAssessmentFile    *uuid.UUID `json:"action_financial_assessment_file,omitempty" db:"action_financial_assessment_file"`
}

// State derives the lifecycle state from the milestone timestamps
func (a *Assessment) State() State {
	switch {
	case a.RefusedAt != nil:
		return StateRefused
	case a.FinalReviewedAt != nil:
		return StateFinalReviewed
	case a.ReviewedAt != nil:
		return StateReviewed
	case a.DecisionValidatedAt != nil:
		return StateDecisionValidated
	case a.GrantsSelectionValidatedAt != nil:
		return StateGrantsValidated
	case a.SubmittedAt != nil:
		return StateSubmitted
	case a.ContractsSelectionValidatedAt != nil:
		return StateContractsValidated
	case a.ContractsSyncedAt != nil:
		return StateDataSynced
	default:
		return StateDraft
	}
}

// Milestones returns the chronological milestone timestamps in order, with
// the field names used in error messages
func (a *Assessment) Milestones() []Milestone {
	return []Milestone{
		{"created_at", &a.CreatedAt},
		{"contracts_synced_at", a.ContractsSyncedAt},
		{"contracts_selection_validated_at", a.ContractsSelectionValidatedAt},
		{"submitted_at", a.SubmittedAt},
		{"grants_selection_validated_at", a.GrantsSelectionValidatedAt},
		{"decision_validated_at", a.DecisionValidatedAt},
		{"reviewed_at", a.ReviewedAt},
		{"final_reviewed_at", a.FinalReviewedAt},
	}
}

// Milestone is a named, possibly unset lifecycle timestamp
type Milestone struct {
	Name string
	At   *time.Time
}

// HasAllDocuments reports whether the three supporting documents are uploaded
func (a *Assessment) HasAllDocuments() bool {
	return a.SummaryDocumentFile != nil &&
		a.StructureFinancialAssessmentFile != nil &&
		a.ActionFinancialAssessmentFile != nil
}

// Balance is the settlement amount after final review, in euros.
// Positive means the GEIQ owes money back.
func (a *Assessment) Balance() int {
	return a.GrantedAmount - a.AdvanceAmount
}

// BalanceKind labels the settlement direction for the result view
func (a *Assessment) BalanceKind() BalanceKind {
	if a.Balance() > 0 {
		return BalanceRefundOwed
	}
	return BalanceDue
}

// AssessmentResult is the financial settlement surfaced once the assessment
// is final reviewed
type AssessmentResult struct {
	ConventionAmount int         `json:"convention_amount"`
	GrantedAmount    int         `json:"granted_amount"`
	AdvanceAmount    int         `json:"advance_amount"`
	Balance          int         `json:"balance"`
	BalanceKind      BalanceKind `json:"balance_kind"`
}

// Result builds the settlement view
func (a *Assessment) Result() AssessmentResult {
	return AssessmentResult{
		ConventionAmount: a.ConventionAmount,
		GrantedAmount:    a.GrantedAmount,
		AdvanceAmount:    a.AdvanceAmount,
		Balance:          a.Balance(),
		BalanceKind:      a.BalanceKind(),
	}
}

// ValidationError is a single violated invariant, attributed to a field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects all violated invariants of one write so the
// caller can surface them together
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every aggregate invariant and returns the full list of
// violations. Run inside the same transaction as the write.
func (a *Assessment) Validate() ValidationErrors {
	var errs ValidationErrors

	milestones := a.Milestones()
	for i := 1; i < len(milestones); i++ {
		earlier, later := milestones[i-1], milestones[i]
		if earlier.At != nil && later.At != nil && later.At.Before(*earlier.At) {
			errs = append(errs, ValidationError{
				Field:   later.Name,
				Message: fmt.Sprintf("must not precede %s", earlier.Name),
			})
		}
	}

	if a.SubmittedAt != nil {
		if a.SubmittedBy == nil {
			errs = append(errs, ValidationError{"submitted_by", "required once submitted"})
		}
		if a.GeiqComment == "" {
			errs = append(errs, ValidationError{"geiq_comment", "required once submitted"})
		}
		if a.SummaryDocumentFile == nil && a.StructureFinancialAssessmentFile == nil &&
			a.ActionFinancialAssessmentFile == nil {
			errs = append(errs, ValidationError{"documents", "at least one document is required once submitted"})
		}
	}

	if a.ReviewedAt != nil {
		if a.ReviewedBy == nil {
			errs = append(errs, ValidationError{"reviewed_by", "required once reviewed"})
		}
		if a.ReviewedByInstitution == nil {
			errs = append(errs, ValidationError{"reviewed_by_institution", "required once reviewed"})
		}
		if a.ReviewComment == "" {
			errs = append(errs, ValidationError{"review_comment", "required once reviewed"})
		}
	}

	if a.FinalReviewedAt != nil {
		if a.FinalReviewedBy == nil {
			errs = append(errs, ValidationError{"final_reviewed_by", "required once final reviewed"})
		}
		if a.FinalReviewedByInstitution == nil {
			errs = append(errs, ValidationError{"final_reviewed_by_institution", "required once final reviewed"})
		}
	}

	if a.ConventionAmount < 0 {
		errs = append(errs, ValidationError{"convention_amount", "must not be negative"})
	}
	if a.GrantedAmount < 0 {
		errs = append(errs, ValidationError{"granted_amount", "must not be negative"})
	}
	if a.AdvanceAmount < 0 {
		errs = append(errs, ValidationError{"advance_amount", "must not be negative"})
	}
	if a.DecisionValidatedAt != nil {
		if a.GrantedAmount > a.ConventionAmount {
			errs = append(errs, ValidationError{"granted_amount", "must not exceed convention_amount"})
		}
		if a.AdvanceAmount > a.ConventionAmount {
			errs = append(errs, ValidationError{"advance_amount", "must not exceed convention_amount"})
		}
	}

	return errs
}

// ValidateDecisionAmounts checks the amounts supplied for a decision
// validation, collecting every violation
func ValidateDecisionAmounts(convention, granted, advance int, reviewComment string) ValidationErrors {
	var errs ValidationErrors

	if convention < 0 {
		errs = append(errs, ValidationError{"convention_amount", "must not be negative"})
	}
	if granted < 0 {
		errs = append(errs, ValidationError{"granted_amount", "must not be negative"})
	}
	if advance < 0 {
		errs = append(errs, ValidationError{"advance_amount", "must not be negative"})
	}
	if granted > convention {
		errs = append(errs, ValidationError{"granted_amount", "must not exceed convention_amount"})
	}
	if advance > convention {
		errs = append(errs, ValidationError{"advance_amount", "must not exceed convention_amount"})
	}
	if strings.TrimSpace(reviewComment) == "" {
		errs = append(errs, ValidationError{"review_comment", "must not be empty"})
	}

	return errs
}
