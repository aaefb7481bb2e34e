package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// EmployeeRepository handles employee, contract and prequalification
// database operations. Sync writes are upserts keyed on the external
// label_id so re-running a sync never duplicates rows.
type EmployeeRepository struct {
	db DBTX
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *EmployeeRepository) WithTx(tx *sql.Tx) *EmployeeRepository {
	return &EmployeeRepository{db: tx}
}

// Upsert inserts or refreshes an employee keyed by (assessment, label_id)
func (r *EmployeeRepository) Upsert(employee *models.Employee) error {
	query := `
		INSERT INTO employees (assessment_id, label_id, first_name, last_name, birthdate,
		                       title, allowance_amount, other_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (assessment_id, label_id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    birthdate = EXCLUDED.birthdate,
		    title = EXCLUDED.title,
		    allowance_amount = EXCLUDED.allowance_amount,
		    other_data = EXCLUDED.other_data,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`

	otherData := []byte(employee.OtherData)
	if len(otherData) == 0 {
		otherData = []byte(`{}`)
	}

	err := r.db.QueryRow(
		query,
		employee.AssessmentID,
		employee.LabelID,
		employee.FirstName,
		employee.LastName,
		employee.Birthdate,
		employee.Title,
		employee.AllowanceAmount,
		otherData,
	).Scan(&employee.ID, &employee.CreatedAt, &employee.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert employee: %w", err)
	}

	return nil
}

// UpsertContract inserts or refreshes a contract keyed by (employee, label_id).
// The allowance flags are only written on insert; institution and GEIQ
// toggles survive re-syncs.
func (r *EmployeeRepository) UpsertContract(contract *models.EmployeeContract) error {
	query := `
		INSERT INTO employee_contracts (employee_id, label_id, start_at, planned_end_at, end_at,
		                                nb_days_in_campaign_year, allowance_requested,
		                                allowance_granted, other_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (employee_id, label_id) DO UPDATE
		SET start_at = EXCLUDED.start_at,
		    planned_end_at = EXCLUDED.planned_end_at,
		    end_at = EXCLUDED.end_at,
		    nb_days_in_campaign_year = EXCLUDED.nb_days_in_campaign_year,
		    other_data = EXCLUDED.other_data,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, allowance_requested, allowance_granted, created_at, updated_at
	`

	otherData := []byte(contract.OtherData)
	if len(otherData) == 0 {
		otherData = []byte(`{}`)
	}

	err := r.db.QueryRow(
		query,
		contract.EmployeeID,
		contract.LabelID,
		contract.StartAt,
		contract.PlannedEndAt,
		contract.EndAt,
		contract.NbDaysInCampaignYear,
		contract.AllowanceRequested,
		contract.AllowanceGranted,
		otherData,
	).Scan(
		&contract.ID,
		&contract.AllowanceRequested,
		&contract.AllowanceGranted,
		&contract.CreatedAt,
		&contract.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contract: %w", err)
	}

	return nil
}

// UpsertPrequalification inserts or refreshes a prequalification keyed by
// (employee, label_id)
func (r *EmployeeRepository) UpsertPrequalification(prequalification *models.EmployeePrequalification) error {
	query := `
		INSERT INTO employee_prequalifications (employee_id, label_id, start_at, end_at, other_data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, label_id) DO UPDATE
		SET start_at = EXCLUDED.start_at,
		    end_at = EXCLUDED.end_at,
		    other_data = EXCLUDED.other_data,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`

	otherData := []byte(prequalification.OtherData)
	if len(otherData) == 0 {
		otherData = []byte(`{}`)
	}

	err := r.db.QueryRow(
		query,
		prequalification.EmployeeID,
		prequalification.LabelID,
		prequalification.StartAt,
		prequalification.EndAt,
		otherData,
	).Scan(&prequalification.ID, &prequalification.CreatedAt, &prequalification.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert prequalification: %w", err)
	}

	return nil
}

// ListByAssessment returns all employees of an assessment
func (r *EmployeeRepository) ListByAssessment(assessmentID uuid.UUID) ([]models.Employee, error) {
	query := `
		SELECT id, assessment_id, label_id, first_name, last_name, birthdate,
		       title, allowance_amount, other_data, created_at, updated_at
		FROM employees
		WHERE assessment_id = $1
		ORDER BY last_name, first_name
	`

	rows, err := r.db.Query(query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		var employee models.Employee
		err := rows.Scan(
			&employee.ID,
			&employee.AssessmentID,
			&employee.LabelID,
			&employee.FirstName,
			&employee.LastName,
			&employee.Birthdate,
			&employee.Title,
			&employee.AllowanceAmount,
			&employee.OtherData,
			&employee.CreatedAt,
			&employee.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, employee)
	}

	return employees, rows.Err()
}

// ListContractsByAssessment returns all contracts of an assessment's employees
func (r *EmployeeRepository) ListContractsByAssessment(assessmentID uuid.UUID) ([]models.EmployeeContract, error) {
	query := `
		SELECT c.id, c.employee_id, c.label_id, c.start_at, c.planned_end_at, c.end_at,
		       c.nb_days_in_campaign_year, c.allowance_requested, c.allowance_granted,
		       c.other_data, c.created_at, c.updated_at
		FROM employee_contracts c
		JOIN employees e ON e.id = c.employee_id
		WHERE e.assessment_id = $1
		ORDER BY c.start_at
	`

	rows, err := r.db.Query(query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	return scanContracts(rows)
}

// ListContractsByEmployee returns all contracts of one employee
func (r *EmployeeRepository) ListContractsByEmployee(employeeID uuid.UUID) ([]models.EmployeeContract, error) {
	query := `
		SELECT id, employee_id, label_id, start_at, planned_end_at, end_at,
		       nb_days_in_campaign_year, allowance_requested, allowance_granted,
		       other_data, created_at, updated_at
		FROM employee_contracts
		WHERE employee_id = $1
		ORDER BY start_at
	`

	rows, err := r.db.Query(query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	return scanContracts(rows)
}

func scanContracts(rows *sql.Rows) ([]models.EmployeeContract, error) {
	var contracts []models.EmployeeContract
	for rows.Next() {
		var contract models.EmployeeContract
		err := rows.Scan(
			&contract.ID,
			&contract.EmployeeID,
			&contract.LabelID,
			&contract.StartAt,
			&contract.PlannedEndAt,
			&contract.EndAt,
			&contract.NbDaysInCampaignYear,
			&contract.AllowanceRequested,
			&contract.AllowanceGranted,
			&contract.OtherData,
			&contract.CreatedAt,
			&contract.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, contract)
	}

	return contracts, rows.Err()
}

// GetContract retrieves a contract by ID, scoped to an assessment
func (r *EmployeeRepository) GetContract(assessmentID, contractID uuid.UUID) (*models.EmployeeContract, error) {
	query := `
		SELECT c.id, c.employee_id, c.label_id, c.start_at, c.planned_end_at, c.end_at,
		       c.nb_days_in_campaign_year, c.allowance_requested, c.allowance_granted,
		       c.other_data, c.created_at, c.updated_at
		FROM employee_contracts c
		JOIN employees e ON e.id = c.employee_id
		WHERE e.assessment_id = $1 AND c.id = $2
	`

	contract := &models.EmployeeContract{}
	err := r.db.QueryRow(query, assessmentID, contractID).Scan(
		&contract.ID,
		&contract.EmployeeID,
		&contract.LabelID,
		&contract.StartAt,
		&contract.PlannedEndAt,
		&contract.EndAt,
		&contract.NbDaysInCampaignYear,
		&contract.AllowanceRequested,
		&contract.AllowanceGranted,
		&contract.OtherData,
		&contract.CreatedAt,
		&contract.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return contract, nil
}

// SetAllowanceRequested updates the GEIQ-side allowance flag
func (r *EmployeeRepository) SetAllowanceRequested(contractID uuid.UUID, requested bool) error {
	query := `
		UPDATE employee_contracts
		SET allowance_requested = $1,
		    allowance_granted = allowance_granted AND $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	if _, err := r.db.Exec(query, requested, contractID); err != nil {
		return fmt.Errorf("failed to set allowance requested: %w", err)
	}
	return nil
}

// SetAllowanceGranted updates the institution-side allowance flag
func (r *EmployeeRepository) SetAllowanceGranted(contractID uuid.UUID, granted bool) error {
	query := `
		UPDATE employee_contracts
		SET allowance_granted = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	if _, err := r.db.Exec(query, granted, contractID); err != nil {
		return fmt.Errorf("failed to set allowance granted: %w", err)
	}
	return nil
}

// DefaultGrantsToRequests sets allowance_granted from allowance_requested for
// every contract of the assessment. Runs at submission.
func (r *EmployeeRepository) DefaultGrantsToRequests(assessmentID uuid.UUID) error {
	query := `
		UPDATE employee_contracts c
		SET allowance_granted = c.allowance_requested, updated_at = CURRENT_TIMESTAMP
		FROM employees e
		WHERE e.id = c.employee_id AND e.assessment_id = $1
	`

	if _, err := r.db.Exec(query, assessmentID); err != nil {
		return fmt.Errorf("failed to default grants: %w", err)
	}
	return nil
}

// ListPrequalificationsByEmployee returns all prequalifications of an employee
func (r *EmployeeRepository) ListPrequalificationsByEmployee(employeeID uuid.UUID) ([]models.EmployeePrequalification, error) {
	query := `
		SELECT id, employee_id, label_id, start_at, end_at, other_data, created_at, updated_at
		FROM employee_prequalifications
		WHERE employee_id = $1
		ORDER BY end_at DESC
	`

	rows, err := r.db.Query(query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prequalifications: %w", err)
	}
	defer rows.Close()

	var prequalifications []models.EmployeePrequalification
	for rows.Next() {
		var prequalification models.EmployeePrequalification
		err := rows.Scan(
			&prequalification.ID,
			&prequalification.EmployeeID,
			&prequalification.LabelID,
			&prequalification.StartAt,
			&prequalification.EndAt,
			&prequalification.OtherData,
			&prequalification.CreatedAt,
			&prequalification.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prequalification: %w", err)
		}
		prequalifications = append(prequalifications, prequalification)
	}

	return prequalifications, rows.Err()
}
