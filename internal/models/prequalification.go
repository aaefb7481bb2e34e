package models

import (
	"encoding/json"
	"sort"
)

// fallback label when the registry record carries no action name
const defaultPrequalificationLabel = "Autre type de pré-qualification"

// PriorActions renders the human-readable list of prior actions for an
// employee, most recent first. The action name comes from the registry's
// opaque payload when present.
func PriorActions(prequalifications []EmployeePrequalification) []string {
	sorted := make([]EmployeePrequalification, len(prequalifications))
	copy(sorted, prequalifications)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EndAt.After(sorted[j].EndAt)
	})

	actions := make([]string, 0, len(sorted))
	for _, prequalification := range sorted {
		actions = append(actions, prequalificationLabel(prequalification))
	}
	return actions
}

func prequalificationLabel(prequalification EmployeePrequalification) string {
	var payload struct {
		Action struct {
			Libelle string `json:"libelle"`
		} `json:"action_pre_qualification"`
		OtherAction string `json:"autre_type_prequalification_action"`
	}
	if err := json.Unmarshal(prequalification.OtherData, &payload); err != nil {
		return defaultPrequalificationLabel
	}
	if payload.OtherAction != "" {
		return payload.OtherAction
	}
	if payload.Action.Libelle != "" {
		return payload.Action.Libelle
	}
	return defaultPrequalificationLabel
}
