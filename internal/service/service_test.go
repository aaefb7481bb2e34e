package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gip-inclusion/geiq-assessments/internal/docstore"
	"github.com/gip-inclusion/geiq-assessments/internal/label"
	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/testutil"
)

// testEnv wires the full service stack against a containerized database with
// a fake Label client
type testEnv struct {
	db       *sql.DB
	fixtures *testutil.Fixtures

	labelClient *label.FakeClient

	assessmentRepo *repository.AssessmentRepository
	employeeRepo   *repository.EmployeeRepository
	outboxRepo     *repository.OutboxRepository
	auditRepo      *repository.AuditRepository

	assessments *AssessmentService
	sync        *SyncService
	reviews     *ReviewService
	campaigns   *CampaignService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	tc := testutil.SetupTestContainers(t)
	t.Cleanup(func() { tc.Cleanup(t) })

	db := tc.DB
	fixtures := testutil.SetupFixtures(t, db)

	campaignRepo := repository.NewCampaignRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	fileRepo := repository.NewFileRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	m := metrics.New(prometheus.NewRegistry())
	store := docstore.New(fileRepo, "test-signing-key", 15*time.Minute)
	labelClient := &label.FakeClient{
		Contracts:         defaultContracts(),
		Prequalifications: defaultPrequalifications(),
		Rates:             json.RawMessage(`{"taux_accompagnement": 1.0}`),
	}

	return &testEnv{
		db:             db,
		fixtures:       fixtures,
		labelClient:    labelClient,
		assessmentRepo: assessmentRepo,
		employeeRepo:   employeeRepo,
		outboxRepo:     outboxRepo,
		auditRepo:      auditRepo,
		assessments: NewAssessmentService(db, assessmentRepo, employeeRepo, campaignRepo,
			companyRepo, institutionRepo, auditRepo, outboxRepo, store, m),
		sync: NewSyncService(db, labelClient, assessmentRepo, employeeRepo, campaignRepo,
			companyRepo, auditRepo, m),
		reviews: NewReviewService(db, assessmentRepo, employeeRepo, campaignRepo,
			companyRepo, institutionRepo, auditRepo, outboxRepo, m),
		campaigns: NewCampaignService(db, campaignRepo, assessmentRepo, companyRepo,
			auditRepo, outboxRepo),
	}
}

func labelDate(year int, month time.Month, day int) label.Date {
	return label.Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// defaultContracts covers both sides of the allowance default: one contract
// well above the 90-day threshold and one cut short below it.
func defaultContracts() []label.ContractRecord {
	shortEnd := labelDate(2024, time.August, 15)
	return []label.ContractRecord{
		{
			ID:           9001,
			Employee:     label.EmployeeRecord{ID: 501, FirstName: "Jean", LastName: "Dupont", Birthdate: labelDate(1995, time.March, 12), Title: "M"},
			StartAt:      labelDate(2024, time.February, 1),
			PlannedEndAt: labelDate(2024, time.December, 31),
			Raw:          json.RawMessage(`{"id": 9001}`),
		},
		{
			ID:           9002,
			Employee:     label.EmployeeRecord{ID: 502, FirstName: "Marie", LastName: "Martin", Birthdate: labelDate(1998, time.July, 3), Title: "MME"},
			StartAt:      labelDate(2024, time.June, 1),
			PlannedEndAt: labelDate(2025, time.June, 30),
			EndAt:        &shortEnd,
			Raw:          json.RawMessage(`{"id": 9002}`),
		},
	}
}

func defaultPrequalifications() []label.PrequalificationRecord {
	return []label.PrequalificationRecord{
		{
			ID:       7001,
			Employee: label.EmployeeRecord{ID: 501, FirstName: "Jean", LastName: "Dupont", Birthdate: labelDate(1995, time.March, 12), Title: "M"},
			StartAt:  labelDate(2023, time.January, 9),
			EndAt:    labelDate(2023, time.April, 28),
			Raw:      json.RawMessage(`{"action_pre_qualification":{"libelle":"POEI"}}`),
		},
	}
}

// createAssessment opens an assessment linked to the DDETS (convention
// holder) and the DREETS
func (env *testEnv) createAssessment(t *testing.T) *models.Assessment {
	t.Helper()

	assessment, err := env.assessments.CreateAssessment(env.fixtures.GeiqUser.ID, CreateAssessmentInput{
		CampaignID:       env.fixtures.Campaign.ID,
		LabelGeiqID:      testutil.LabelGeiqID,
		LabelGeiqName:    "GEIQ BTP Loire",
		WithMainGeiq:     true,
		InstitutionIDs:   []uint{env.fixtures.Ddets.ID, env.fixtures.Dreets.ID},
		ConventionHolder: env.fixtures.Ddets.ID,
		CompanyIDs:       []uint{env.fixtures.Company.ID},
	})
	if err != nil {
		t.Fatalf("Failed to create assessment: %v", err)
	}
	return assessment
}

// createDreetsOnlyAssessment opens an assessment whose single link is a
// DREETS holding the convention
func (env *testEnv) createDreetsOnlyAssessment(t *testing.T) *models.Assessment {
	t.Helper()

	assessment, err := env.assessments.CreateAssessment(env.fixtures.GeiqUser.ID, CreateAssessmentInput{
		CampaignID:       env.fixtures.Campaign.ID,
		LabelGeiqID:      testutil.LabelGeiqID,
		LabelGeiqName:    "GEIQ BTP Loire",
		WithMainGeiq:     false,
		InstitutionIDs:   []uint{env.fixtures.Dreets.ID},
		ConventionHolder: env.fixtures.Dreets.ID,
		CompanyIDs:       []uint{env.fixtures.Company.ID},
	})
	if err != nil {
		t.Fatalf("Failed to create assessment: %v", err)
	}
	return assessment
}

// prepareForSubmit walks an assessment to the point where Submit succeeds
func (env *testEnv) prepareForSubmit(t *testing.T, assessmentID uuid.UUID) {
	t.Helper()
	geiq := env.fixtures.GeiqUser.ID

	if err := env.sync.SyncContracts(context.Background(), geiq, assessmentID); err != nil {
		t.Fatalf("Failed to sync contracts: %v", err)
	}
	if err := env.assessments.ValidateContractsSelection(geiq, assessmentID); err != nil {
		t.Fatalf("Failed to validate contract selection: %v", err)
	}
	for _, kind := range []string{models.FileKindSummary, models.FileKindStructureFinancial, models.FileKindActionFinancial} {
		if _, err := env.assessments.UploadDocument(geiq, assessmentID, kind, kind+".pdf", "application/pdf", []byte("%PDF-1.4")); err != nil {
			t.Fatalf("Failed to upload %s: %v", kind, err)
		}
	}
	if err := env.assessments.SetGeiqComment(geiq, assessmentID, "Bilan conforme aux objectifs de la convention."); err != nil {
		t.Fatalf("Failed to set comment: %v", err)
	}
}

// submit walks to submission
func (env *testEnv) submit(t *testing.T, assessmentID uuid.UUID) {
	t.Helper()
	env.prepareForSubmit(t, assessmentID)
	if err := env.assessments.Submit(env.fixtures.GeiqUser.ID, assessmentID); err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}
}

// decideAndValidate walks a submitted assessment through grant validation and
// the decision, acting as the given institution user
func (env *testEnv) decideAndValidate(t *testing.T, assessmentID uuid.UUID, userID uint, convention, granted, advance int) {
	t.Helper()

	if err := env.reviews.ValidateGrantsSelection(userID, assessmentID); err != nil {
		t.Fatalf("Failed to validate grant selection: %v", err)
	}
	if err := env.reviews.ValidateDecision(userID, assessmentID, convention, granted, advance, "Montants conformes"); err != nil {
		t.Fatalf("Failed to validate decision: %v", err)
	}
}

func (env *testEnv) getAssessment(t *testing.T, id uuid.UUID) *models.Assessment {
	t.Helper()
	assessment, err := env.assessmentRepo.GetByID(id)
	if err != nil {
		t.Fatalf("Failed to load assessment: %v", err)
	}
	return assessment
}

func (env *testEnv) countNotifications(t *testing.T, assessmentID uuid.UUID, kind string) int {
	t.Helper()
	count, err := env.outboxRepo.CountByKind(assessmentID, kind)
	if err != nil {
		t.Fatalf("Failed to count notifications: %v", err)
	}
	return count
}
