package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/testutil"
)

func TestCreateAssessment(t *testing.T) {
	env := setupEnv(t)

	assessment := env.createAssessment(t)
	if assessment.State() != models.StateDraft {
		t.Errorf("New assessment state = %q, want %q", assessment.State(), models.StateDraft)
	}

	// Only one main-GEIQ assessment per campaign
	_, err := env.assessments.CreateAssessment(env.fixtures.GeiqUser.ID, CreateAssessmentInput{
		CampaignID:       env.fixtures.Campaign.ID,
		LabelGeiqID:      testutil.LabelGeiqID,
		LabelGeiqName:    "GEIQ BTP Loire",
		WithMainGeiq:     true,
		InstitutionIDs:   []uint{env.fixtures.Ddets.ID},
		ConventionHolder: env.fixtures.Ddets.ID,
		CompanyIDs:       []uint{env.fixtures.Company.ID},
	})
	if !errors.Is(err, repository.ErrAssessmentExists) {
		t.Errorf("Expected ErrAssessmentExists, got %v", err)
	}
}

func TestCreateAssessmentRequiresMembership(t *testing.T) {
	env := setupEnv(t)

	_, err := env.assessments.CreateAssessment(env.fixtures.DdetsUser.ID, CreateAssessmentInput{
		CampaignID:       env.fixtures.Campaign.ID,
		LabelGeiqID:      testutil.LabelGeiqID,
		LabelGeiqName:    "GEIQ BTP Loire",
		WithMainGeiq:     true,
		InstitutionIDs:   []uint{env.fixtures.Ddets.ID},
		ConventionHolder: env.fixtures.Ddets.ID,
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for non-member, got %v", err)
	}
}

func TestSyncContracts(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to sync contracts: %v", err)
	}

	reloaded := env.getAssessment(t, assessment.ID)
	if reloaded.State() != models.StateDataSynced {
		t.Errorf("State after sync = %q, want %q", reloaded.State(), models.StateDataSynced)
	}
	if len(reloaded.LabelRates) == 0 {
		t.Error("Label rates should be stored on sync")
	}

	employees, err := env.employeeRepo.ListByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list employees: %v", err)
	}
	if len(employees) != 2 {
		t.Fatalf("Expected 2 employees, got %d", len(employees))
	}

	byLabelID := make(map[int]models.Employee)
	for _, employee := range employees {
		byLabelID[employee.LabelID] = employee
	}
	if amount := byLabelID[501].AllowanceAmount; amount != models.AllowanceAmountWithPrequalification {
		t.Errorf("Prequalified employee allowance = %d, want %d", amount, models.AllowanceAmountWithPrequalification)
	}
	if amount := byLabelID[502].AllowanceAmount; amount != models.AllowanceAmountDefault {
		t.Errorf("Default employee allowance = %d, want %d", amount, models.AllowanceAmountDefault)
	}

	contracts, err := env.employeeRepo.ListContractsByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list contracts: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("Expected 2 contracts, got %d", len(contracts))
	}
	for _, contract := range contracts {
		switch contract.LabelID {
		case 9001:
			// 2024-02-01 through 2024-12-31
			if contract.NbDaysInCampaignYear != 335 {
				t.Errorf("Contract 9001 days = %d, want 335", contract.NbDaysInCampaignYear)
			}
			if !contract.AllowanceRequested {
				t.Error("Contract 9001 should default to a requested allowance")
			}
		case 9002:
			// Cut short on 2024-08-15, below the 90-day threshold
			if contract.NbDaysInCampaignYear != 76 {
				t.Errorf("Contract 9002 days = %d, want 76", contract.NbDaysInCampaignYear)
			}
			if contract.AllowanceRequested {
				t.Error("Contract 9002 should not default to a requested allowance")
			}
		default:
			t.Errorf("Unexpected contract %d", contract.LabelID)
		}
	}
}

func TestSyncContractsIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	// Toggle a flag, then sync again: no duplicates, flag survives
	contracts, err := env.employeeRepo.ListContractsByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list contracts: %v", err)
	}
	var toggled models.EmployeeContract
	for _, contract := range contracts {
		if contract.LabelID == 9002 {
			toggled = contract
		}
	}
	if err := env.assessments.SetAllowanceRequested(geiq, assessment.ID, toggled.ID, true); err != nil {
		t.Fatalf("Failed to toggle allowance: %v", err)
	}

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	employees, err := env.employeeRepo.ListByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list employees: %v", err)
	}
	if len(employees) != 2 {
		t.Errorf("Expected 2 employees after re-sync, got %d", len(employees))
	}

	contracts, err = env.employeeRepo.ListContractsByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list contracts: %v", err)
	}
	if len(contracts) != 2 {
		t.Errorf("Expected 2 contracts after re-sync, got %d", len(contracts))
	}
	for _, contract := range contracts {
		if contract.LabelID == 9002 && !contract.AllowanceRequested {
			t.Error("Manual allowance toggle should survive a re-sync")
		}
	}
}

func TestSyncBlockedAfterSelectionValidated(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if err := env.assessments.ValidateContractsSelection(geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to validate selection: %v", err)
	}

	err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed, got %v", err)
	}
}

func TestValidateContractsSelection(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	// Validation requires a prior sync
	err := env.assessments.ValidateContractsSelection(geiq, assessment.ID)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed before sync, got %v", err)
	}

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if err := env.assessments.ValidateContractsSelection(geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to validate selection: %v", err)
	}

	first := env.getAssessment(t, assessment.ID)

	// Validating again is a no-op, the original timestamp stands
	if err := env.assessments.ValidateContractsSelection(geiq, assessment.ID); err != nil {
		t.Fatalf("Re-validation should be a no-op, got %v", err)
	}
	second := env.getAssessment(t, assessment.ID)
	if !second.ContractsSelectionValidatedAt.Equal(*first.ContractsSelectionValidatedAt) {
		t.Error("Re-validation must not move the timestamp")
	}

	// Invalidation reopens the selection
	if err := env.assessments.InvalidateContractsSelection(geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to invalidate selection: %v", err)
	}
	if reloaded := env.getAssessment(t, assessment.ID); reloaded.ContractsSelectionValidatedAt != nil {
		t.Error("Invalidation should clear the milestone")
	}
}

func TestSetAllowanceRequestedFrozenAfterValidation(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if err := env.assessments.ValidateContractsSelection(geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to validate selection: %v", err)
	}

	contracts, err := env.employeeRepo.ListContractsByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list contracts: %v", err)
	}
	var requested models.EmployeeContract
	for _, contract := range contracts {
		if contract.AllowanceRequested {
			requested = contract
		}
	}

	// Frozen selection: the toggle silently does nothing
	if err := env.assessments.SetAllowanceRequested(geiq, assessment.ID, requested.ID, false); err != nil {
		t.Fatalf("Toggle after freeze should be a silent no-op, got %v", err)
	}
	reloaded, err := env.employeeRepo.GetContract(assessment.ID, requested.ID)
	if err != nil {
		t.Fatalf("Failed to reload contract: %v", err)
	}
	if !reloaded.AllowanceRequested {
		t.Error("Flag must not change once the selection is validated")
	}
}

func TestSubmit(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	env.prepareForSubmit(t, assessment.ID)
	if err := env.assessments.Submit(geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	reloaded := env.getAssessment(t, assessment.ID)
	if reloaded.State() != models.StateSubmitted {
		t.Errorf("State after submit = %q, want %q", reloaded.State(), models.StateSubmitted)
	}
	if reloaded.SubmittedBy == nil || *reloaded.SubmittedBy != geiq {
		t.Error("Submit should record the acting user")
	}

	// Grants default to the requested flags
	contracts, err := env.employeeRepo.ListContractsByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("Failed to list contracts: %v", err)
	}
	for _, contract := range contracts {
		if contract.AllowanceGranted != contract.AllowanceRequested {
			t.Errorf("Contract %d granted = %v, want the requested flag %v",
				contract.LabelID, contract.AllowanceGranted, contract.AllowanceRequested)
		}
	}

	// One notification per linked institution
	if n := env.countNotifications(t, assessment.ID, models.NotificationAssessmentSubmitted); n != 2 {
		t.Errorf("Expected 2 submission notifications, got %d", n)
	}

	// Resubmitting is a no-op and queues nothing new
	if err := env.assessments.Submit(geiq, assessment.ID); err != nil {
		t.Fatalf("Resubmit should be a no-op, got %v", err)
	}
	resubmitted := env.getAssessment(t, assessment.ID)
	if !resubmitted.SubmittedAt.Equal(*reloaded.SubmittedAt) {
		t.Error("Resubmit must not move the timestamp")
	}
	if n := env.countNotifications(t, assessment.ID, models.NotificationAssessmentSubmitted); n != 2 {
		t.Errorf("Resubmit must not queue notifications, got %d", n)
	}
}

func TestSubmitGuards(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	geiq := env.fixtures.GeiqUser.ID

	err := env.assessments.Submit(geiq, assessment.ID)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed before sync, got %v", err)
	}

	if err := env.sync.SyncContracts(context.Background(), geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if err := env.assessments.ValidateContractsSelection(geiq, assessment.ID); err != nil {
		t.Fatalf("Failed to validate selection: %v", err)
	}

	// Still missing documents and the comment
	err = env.assessments.Submit(geiq, assessment.ID)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed without documents, got %v", err)
	}
}

func TestUploadDocumentBlockedAfterSubmit(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)
	env.submit(t, assessment.ID)

	_, err := env.assessments.UploadDocument(env.fixtures.GeiqUser.ID, assessment.ID,
		models.FileKindSummary, "late.pdf", "application/pdf", []byte("%PDF-1.4"))
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed after submit, got %v", err)
	}
}

func TestGetAssessmentAccess(t *testing.T) {
	env := setupEnv(t)
	assessment := env.createAssessment(t)

	// Members of linked institutions can read
	if _, err := env.assessments.GetAssessment(env.fixtures.DdetsUser.ID, []string{"institution"}, assessment.ID); err != nil {
		t.Errorf("DDETS member should read the assessment, got %v", err)
	}
	// Admins can read
	if _, err := env.assessments.GetAssessment(env.fixtures.AdminUser.ID, []string{"admin"}, assessment.ID); err != nil {
		t.Errorf("Admin should read the assessment, got %v", err)
	}
	// Strangers cannot
	stranger := testutil.CreateUser(t, env.db, "stranger@test.fr", "geiq")
	if _, err := env.assessments.GetAssessment(stranger.ID, []string{"geiq"}, assessment.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for a stranger, got %v", err)
	}
}
