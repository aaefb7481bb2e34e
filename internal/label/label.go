// Package label talks to the external Label registry, the authoritative
// source for GEIQ employee, contract and prequalification data.
package label

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Client is the registry surface the sync service depends on
type Client interface {
	GetAllContracts(ctx context.Context, geiqID int) ([]ContractRecord, error)
	GetAllPrequalifications(ctx context.Context, geiqID int) ([]PrequalificationRecord, error)
	GetRates(ctx context.Context, geiqID int) (json.RawMessage, error)
}

// Date handles the registry's "YYYY-MM-DD" date encoding
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	value := strings.Trim(string(data), `"`)
	if value == "" || value == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return fmt.Errorf("invalid label date %q: %w", value, err)
	}
	d.Time = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// EmployeeRecord is the employee part of a registry contract record
type EmployeeRecord struct {
	ID        int    `json:"id"`
	FirstName string `json:"prenom"`
	LastName  string `json:"nom"`
	Birthdate Date   `json:"date_naissance"`
	Title     string `json:"civilite"`
}

// ContractRecord is one work contract as reported by the registry. Raw holds
// the complete payload and is persisted verbatim.
type ContractRecord struct {
	ID           int            `json:"id"`
	Employee     EmployeeRecord `json:"salarie"`
	StartAt      Date           `json:"date_debut"`
	PlannedEndAt Date           `json:"date_fin"`
	EndAt        *Date          `json:"date_fin_contrat"`

	Raw json.RawMessage `json:"-"`
}

// PrequalificationRecord is one prior qualification as reported by the
// registry
type PrequalificationRecord struct {
	ID       int            `json:"id"`
	Employee EmployeeRecord `json:"salarie"`
	StartAt  Date           `json:"date_debut"`
	EndAt    Date           `json:"date_fin"`

	Raw json.RawMessage `json:"-"`
}
