package testutil

import (
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// Fixtures holds the standard test data: one campaign, one GEIQ with a user,
// a first-tier DDETS and a final-tier DREETS with one member each.
type Fixtures struct {
	DB *sql.DB

	Campaign *models.Campaign
	Company  *models.Company
	Ddets    *models.Institution
	Dreets   *models.Institution

	GeiqUser   *models.User
	DdetsUser  *models.User
	DreetsUser *models.User
	AdminUser  *models.User
}

// LabelGeiqID is the registry ID of the fixture GEIQ
const LabelGeiqID = 1042

// SetupFixtures creates the standard test data
func SetupFixtures(t *testing.T, db *sql.DB) *Fixtures {
	t.Helper()

	campaignRepo := repository.NewCampaignRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)

	fixtures := &Fixtures{DB: db}

	fixtures.Campaign = &models.Campaign{
		Year:               2024,
		SubmissionDeadline: time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC),
		ReviewDeadline:     time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := campaignRepo.Create(fixtures.Campaign); err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}

	fixtures.Company = &models.Company{
		LabelGeiqID: LabelGeiqID,
		Name:        "GEIQ BTP Loire",
	}
	if err := companyRepo.Create(fixtures.Company); err != nil {
		t.Fatalf("Failed to create company: %v", err)
	}

	fixtures.Ddets = &models.Institution{
		Kind:       models.InstitutionKindDDETS,
		Name:       "DDETS Loire",
		Department: "42",
	}
	if err := institutionRepo.Create(fixtures.Ddets); err != nil {
		t.Fatalf("Failed to create DDETS: %v", err)
	}

	fixtures.Dreets = &models.Institution{
		Kind:       models.InstitutionKindDREETS,
		Name:       "DREETS Auvergne-Rhone-Alpes",
		Department: "69",
	}
	if err := institutionRepo.Create(fixtures.Dreets); err != nil {
		t.Fatalf("Failed to create DREETS: %v", err)
	}

	fixtures.GeiqUser = CreateUser(t, db, "geiq@test.fr", "geiq")
	fixtures.DdetsUser = CreateUser(t, db, "ddets@test.fr", "institution")
	fixtures.DreetsUser = CreateUser(t, db, "dreets@test.fr", "institution")
	fixtures.AdminUser = CreateUser(t, db, "admin@test.fr", "admin")

	if err := companyRepo.AddMember(fixtures.GeiqUser.ID, fixtures.Company.ID); err != nil {
		t.Fatalf("Failed to add company member: %v", err)
	}
	if err := institutionRepo.AddMember(fixtures.DdetsUser.ID, fixtures.Ddets.ID); err != nil {
		t.Fatalf("Failed to add DDETS member: %v", err)
	}
	if err := institutionRepo.AddMember(fixtures.DreetsUser.ID, fixtures.Dreets.ID); err != nil {
		t.Fatalf("Failed to add DREETS member: %v", err)
	}

	return fixtures
}

// CreateUser creates an active user with the given roles. The password is
// always "password".
func CreateUser(t *testing.T, db *sql.DB, email string, roles ...string) *models.User {
	t.Helper()

	userRepo := repository.NewUserRepository(db)

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Test",
		LastName:     "User",
		IsActive:     true,
	}
	if err := userRepo.Create(user); err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}

	for _, role := range roles {
		if err := userRepo.AssignRole(user.ID, role); err != nil {
			t.Fatalf("Failed to assign role %s: %v", role, err)
		}
	}

	return user
}
