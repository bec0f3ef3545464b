package foscam

import (
	"strings"

	"github.com/camden-git/foscambackend/models"
)

// Keyword lists per alert kind, matched case-insensitively as substrings
// against the description text. Order of the map iteration does not
// matter; fired kinds are reported in catalog order.
var alertKeywords = map[string][]string{
	models.AlertPersonDetected:  {"person", "people", "individual", "man", "woman", "child", "adult", "human", "pedestrian", "figure"},
	models.AlertVehicleDetected: {"vehicle", "car", "truck", "van", "suv", "motorcycle", "bike", "automobile"},
	models.AlertPackageDetected: {"package", "delivery", "box", "bag", "container", "parcel"},
	models.AlertUnusualActivity: {"suspicious", "unusual", "unexpected", "strange", "abnormal", "loitering", "prowling", "trespassing", "unknown"},
	models.AlertNightTime:       {"night", "dark", "darkness", "low light", "nighttime"},
}

// alertKindOrder fixes the order in which fired kinds are reported and
// DetectionAlert rows are written.
var alertKindOrder = []string{
	models.AlertPersonDetected,
	models.AlertVehicleDetected,
	models.AlertPackageDetected,
	models.AlertUnusualActivity,
	models.AlertNightTime,
}

// AlertFlags is the denormalized projection of the fired alert kinds.
type AlertFlags struct {
	HasPerson          bool
	HasVehicle         bool
	HasPackage         bool
	HasUnusualActivity bool
	IsNightTime        bool
	AlertCount         int
}

// DeriveAlerts maps a description to the fixed set of boolean flags and
// the list of alert kind names to be written as DetectionAlert rows.
// AlertCount equals the number of kinds fired.
func DeriveAlerts(description string) (AlertFlags, []string) {
	lower := strings.ToLower(description)

	var kinds []string
	for _, kind := range alertKindOrder {
		for _, keyword := range alertKeywords[kind] {
			if strings.Contains(lower, keyword) {
				kinds = append(kinds, kind)
				break
			}
		}
	}

	flags := AlertFlags{AlertCount: len(kinds)}
	for _, kind := range kinds {
		switch kind {
		case models.AlertPersonDetected:
			flags.HasPerson = true
		case models.AlertVehicleDetected:
			flags.HasVehicle = true
		case models.AlertPackageDetected:
			flags.HasPackage = true
		case models.AlertUnusualActivity:
			flags.HasUnusualActivity = true
		case models.AlertNightTime:
			flags.IsNightTime = true
		}
	}
	return flags, kinds
}
