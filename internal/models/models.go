package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID           uint      `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Role represents a user role
type Role struct {
	ID          uint      `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// UserRole represents the many-to-many relationship between users and roles
type UserRole struct {
	UserID    uint      `json:"user_id" db:"user_id"`
	RoleID    uint      `json:"role_id" db:"role_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserWithRoles extends User with roles information
type UserWithRoles struct {
	User
	Roles []Role `json:"roles"`
}

// Campaign is the yearly container for GEIQ assessments
type Campaign struct {
	ID                 uint      `json:"id" db:"id"`
	Year               int       `json:"year" db:"year"`
	SubmissionDeadline time.Time `json:"submission_deadline" db:"submission_deadline"`
	ReviewDeadline     time.Time `json:"review_deadline" db:"review_deadline"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Company represents a GEIQ structure (main GEIQ or antenna)
type Company struct {
	ID          uint      `json:"id" db:"id"`
	LabelGeiqID int       `json:"label_geiq_id" db:"label_geiq_id"`
	Name        string    `json:"name" db:"name"`
	IsAntenna   bool      `json:"is_antenna" db:"is_antenna"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Institution kinds
const (
	InstitutionKindDDETS  = "DDETS_GEIQ"
	InstitutionKindDREETS = "DREETS_GEIQ"
)

// Institution represents an oversight institution (DDETS or DREETS)
type Institution struct {
	ID         uint      `json:"id" db:"id"`
	Kind       string    `json:"kind" db:"kind"`
	Name       string    `json:"name" db:"name"`
	Department string    `json:"department" db:"department"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CompanyMembership links a user to a GEIQ company
type CompanyMembership struct {
	UserID    uint      `json:"user_id" db:"user_id"`
	CompanyID uint      `json:"company_id" db:"company_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// InstitutionMembership links a user to an oversight institution
type InstitutionMembership struct {
	UserID        uint      `json:"user_id" db:"user_id"`
	InstitutionID uint      `json:"institution_id" db:"institution_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// InstitutionLink records an oversight institution attached to an assessment.
// The institution holding the funding convention acts as the first review
// tier; any other linked institution acts as the final tier.
type InstitutionLink struct {
	ID             uint      `json:"id" db:"id"`
	AssessmentID   uuid.UUID `json:"assessment_id" db:"assessment_id"`
	InstitutionID  uint      `json:"institution_id" db:"institution_id"`
	WithConvention bool      `json:"with_convention" db:"with_convention"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// File kinds for assessment documents
const (
	FileKindSummary            = "summary"
	FileKindStructureFinancial = "structure_financial"
	FileKindActionFinancial    = "action_financial"
)

// AssessmentFile is an uploaded supporting document stored as a blob
type AssessmentFile struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AssessmentID uuid.UUID `json:"assessment_id" db:"assessment_id"`
	Kind         string    `json:"kind" db:"kind"`
	Filename     string    `json:"filename" db:"filename"`
	ContentType  string    `json:"content_type" db:"content_type"`
	Content      []byte    `json:"-" db:"content"`
	UploadedBy   uint      `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// Employee is a worker record synced from the Label registry
type Employee struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	AssessmentID    uuid.UUID       `json:"assessment_id" db:"assessment_id"`
	LabelID         int             `json:"label_id" db:"label_id"`
	FirstName       string          `json:"first_name" db:"first_name"`
	LastName        string          `json:"last_name" db:"last_name"`
	Birthdate       time.Time       `json:"birthdate" db:"birthdate"`
	Title           string          `json:"title" db:"title"`
	AllowanceAmount int             `json:"allowance_amount" db:"allowance_amount"`
	OtherData       json.RawMessage `json:"other_data" db:"other_data"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// EmployeeContract is a work contract synced from the Label registry
type EmployeeContract struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	EmployeeID           uuid.UUID       `json:"employee_id" db:"employee_id"`
	LabelID              int             `json:"label_id" db:"label_id"`
	StartAt              time.Time       `json:"start_at" db:"start_at"`
	PlannedEndAt         time.Time       `json:"planned_end_at" db:"planned_end_at"`
	EndAt                *time.Time      `json:"end_at,omitempty" db:"end_at"`
	NbDaysInCampaignYear int             `json:"nb_days_in_campaign_year" db:"nb_days_in_campaign_year"`
	AllowanceRequested   bool            `json:"allowance_requested" db:"allowance_requested"`
	AllowanceGranted     bool            `json:"allowance_granted" db:"allowance_granted"`
	OtherData            json.RawMessage `json:"other_data" db:"other_data"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// EmployeePrequalification is a prior-qualification record synced from Label
type EmployeePrequalification struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	EmployeeID uuid.UUID       `json:"employee_id" db:"employee_id"`
	LabelID    int             `json:"label_id" db:"label_id"`
	StartAt    time.Time       `json:"start_at" db:"start_at"`
	EndAt      time.Time       `json:"end_at" db:"end_at"`
	OtherData  json.RawMessage `json:"other_data" db:"other_data"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// EmployeeWithChildren bundles an employee with its contracts and
// prequalifications for the detail endpoints
type EmployeeWithChildren struct {
	Employee
	Contracts         []EmployeeContract         `json:"contracts"`
	Prequalifications []EmployeePrequalification `json:"prequalifications"`
}

// OutboxNotification is a pending or sent notification row. Rows are written
// in the same transaction as the state change they announce and dispatched
// after commit.
type OutboxNotification struct {
	ID           uint            `json:"id" db:"id"`
	AssessmentID *uuid.UUID      `json:"assessment_id,omitempty" db:"assessment_id"`
	Kind         string          `json:"kind" db:"kind"`
	Recipients   []string        `json:"recipients" db:"recipients"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
}

// Outbox notification kinds
const (
	NotificationAssessmentSubmitted     = "assessment_submitted"
	NotificationAssessmentReviewed      = "assessment_reviewed"
	NotificationAssessmentFinalReviewed = "assessment_final_reviewed"
	NotificationAssessmentRefused       = "assessment_refused"
	NotificationSubmissionReminder      = "submission_reminder"
	NotificationInstitutionSummary      = "institution_summary"
)

// NotificationPayload is the context carried by an outbox row, rendered into
// the email template matching the notification kind
type NotificationPayload struct {
	GeiqName        string `json:"geiq_name,omitempty"`
	Year            int    `json:"year,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Balance         int    `json:"balance,omitempty"`
	RefundOwed      bool   `json:"refund_owed,omitempty"`
	Deadline        string `json:"deadline,omitempty"`
	InstitutionName string `json:"institution_name,omitempty"`
	PendingCount    int    `json:"pending_count,omitempty"`
}

// AuditLog records who did what on which resource
type AuditLog struct {
	ID        uint      `json:"id" db:"id"`
	UserID    *uint     `json:"user_id,omitempty" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource" db:"resource"`
	Details   string    `json:"details,omitempty" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
