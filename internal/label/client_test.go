package label

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/config"
)

func TestGetAllContracts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		if r.URL.Query().Get("id") != "42" {
			t.Errorf("Expected geiq id 42, got %q", r.URL.Query().Get("id"))
		}

		fmt.Fprint(w, `{"results": [
			{"id": 7, "salarie": {"id": 3, "nom": "Martin", "prenom": "Léa", "date_naissance": "1995-04-02", "civilite": "MME"},
			 "date_debut": "2023-01-15", "date_fin": "2023-12-31", "date_fin_contrat": null,
			 "nature_contrat": "CDD"}
		]}`)
	}))
	defer server.Close()

	client := NewHTTPClient(&config.LabelConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})

	records, err := client.GetAllContracts(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetAllContracts failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	record := records[0]
	if record.ID != 7 {
		t.Errorf("Expected contract id 7, got %d", record.ID)
	}
	if record.Employee.LastName != "Martin" {
		t.Errorf("Expected employee Martin, got %q", record.Employee.LastName)
	}
	if record.StartAt.Format("2006-01-02") != "2023-01-15" {
		t.Errorf("Unexpected start date: %v", record.StartAt)
	}
	if record.EndAt != nil && !record.EndAt.IsZero() {
		t.Errorf("Expected no contract end date, got %v", record.EndAt)
	}

	// Raw payload is kept verbatim for other_data persistence
	var raw map[string]any
	if err := json.Unmarshal(record.Raw, &raw); err != nil {
		t.Fatalf("Raw payload is not valid JSON: %v", err)
	}
	if raw["nature_contrat"] != "CDD" {
		t.Errorf("Expected raw payload to keep nature_contrat, got %v", raw["nature_contrat"])
	}
}

func TestGetAllContractsPagination(t *testing.T) {
	pages := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("p") == "1" {
			// full first page forces a second fetch
			results := make([]string, 100)
			for i := range results {
				results[i] = fmt.Sprintf(`{"id": %d, "salarie": {"id": 1, "nom": "N", "prenom": "P", "date_naissance": "1990-01-01"}, "date_debut": "2023-01-01", "date_fin": "2023-06-30"}`, i+1)
			}
			fmt.Fprintf(w, `{"results": [%s]}`, joinStrings(results))
			return
		}
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer server.Close()

	client := NewHTTPClient(&config.LabelConfig{BaseURL: server.URL, APIKey: "k", Timeout: 5 * time.Second})

	records, err := client.GetAllContracts(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetAllContracts failed: %v", err)
	}
	if len(records) != 100 {
		t.Errorf("Expected 100 records, got %d", len(records))
	}
	if pages != 2 {
		t.Errorf("Expected 2 page fetches, got %d", pages)
	}
}

func TestGetAllContractsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(&config.LabelConfig{BaseURL: server.URL, APIKey: "k", Timeout: 5 * time.Second})

	if _, err := client.GetAllContracts(context.Background(), 1); err == nil {
		t.Error("Expected an error on HTTP 502")
	}
}

func joinStrings(parts []string) string {
	out := ""
	for i, part := range parts {
		if i > 0 {
			out += ","
		}
		out += part
	}
	return out
}
