package models

import (
	"encoding/json"
	"testing"
	"time"
)

func prequalification(endAt time.Time, otherData string) EmployeePrequalification {
	return EmployeePrequalification{
		EndAt:     endAt,
		OtherData: json.RawMessage(otherData),
	}
}

func TestPriorActionsOrderedMostRecentFirst(t *testing.T) {
	older := prequalification(day(2022, time.June, 30), `{"action_pre_qualification":{"libelle":"AFPR"}}`)
	newer := prequalification(day(2023, time.September, 15), `{"action_pre_qualification":{"libelle":"POEI"}}`)

	actions := PriorActions([]EmployeePrequalification{older, newer})
	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(actions))
	}
	if actions[0] != "POEI" || actions[1] != "AFPR" {
		t.Errorf("Expected most recent first, got %v", actions)
	}
}

func TestPriorActionsLabels(t *testing.T) {
	tests := []struct {
		name      string
		otherData string
		want      string
	}{
		{"registry action name", `{"action_pre_qualification":{"libelle":"POEI"}}`, "POEI"},
		{"free-text action wins", `{"action_pre_qualification":{"libelle":"POEI"},"autre_type_prequalification_action":"Remise à niveau"}`, "Remise à niveau"},
		{"empty payload falls back", `{}`, "Autre type de pré-qualification"},
		{"malformed payload falls back", `not json`, "Autre type de pré-qualification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prequalification(day(2023, time.January, 1), tt.otherData)
			actions := PriorActions([]EmployeePrequalification{p})
			if len(actions) != 1 || actions[0] != tt.want {
				t.Errorf("PriorActions() = %v, want [%q]", actions, tt.want)
			}
		})
	}
}

func TestPriorActionsEmpty(t *testing.T) {
	if actions := PriorActions(nil); len(actions) != 0 {
		t.Errorf("Expected no actions, got %v", actions)
	}
}
