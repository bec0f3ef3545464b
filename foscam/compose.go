package foscam

import (
	"fmt"
	"regexp"
	"strings"
)

// Keyword categories used to condense raw describer aspect text into the
// composite description.
var activityKeywords = [][]string{
	{"walking", "running", "moving", "approaching", "leaving", "entering", "exiting"},
	{"delivering", "dropping off", "picking up", "carrying", "package", "box"},
	{"driving", "parking", "backing up", "pulling in", "arriving", "departing"},
	{"talking", "meeting", "greeting", "conversation", "handshake"},
	{"lurking", "hiding", "sneaking", "loitering", "prowling", "trespassing"},
	{"working", "repairing", "cleaning", "servicing", "installing"},
}

var environmentKeywords = [][]string{
	{"morning", "afternoon", "evening", "night", "dawn", "dusk", "daylight", "daytime", "dark"},
	{"sunny", "cloudy", "rainy", "foggy", "clear", "overcast", "storm"},
	{"residential", "commercial", "parking", "driveway", "street", "yard", "dock", "marina"},
	{"bright", "dim", "shadows", "illuminated", "lit up", "spotlight"},
}

var (
	securityHighPriority   = []string{"person", "individual", "vehicle", "suspicious", "unusual", "unauthorized"}
	securityMediumPriority = []string{"delivery", "package", "visitor", "service"}
)

var objectCountRe = regexp.MustCompile(`(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(people|persons?|individuals?|cars?|vehicles?|trucks?|vans?|packages?|boxes?|bags?|dogs?|cats?|animals?)`)

// TimelineEntry is one dated observation in a video timeline.
type TimelineEntry struct {
	OffsetSeconds float64
	Description   string
}

// ComposeImageDescription builds the pipe-joined composite description
// stored for an image detection:
//
//	SCENE: ... | SECURITY: ... | OBJECTS: ... | ACTIVITY: ... | SETTING: ... | ALERTS: ...
//
// Empty or error aspects are omitted. The ALERTS tail carries the alert
// kinds fired over the full aspect text; the returned kinds are the same
// set, to be written as DetectionAlert rows.
func ComposeImageDescription(aspects map[string]string) (string, []string) {
	general := aspects["general"]
	security := aspects["security"]
	objects := aspects["objects"]
	activities := aspects["activities"]
	environment := aspects["environment"]

	var parts []string

	if general != "" {
		parts = append(parts, "SCENE: "+general)
	}

	if security != "" && !strings.Contains(strings.ToLower(security), "error") {
		if relevant := extractSecurityRelevance(security); relevant != "" {
			parts = append(parts, "SECURITY: "+relevant)
		}
	}

	if objects != "" {
		if summary := extractObjectCounts(objects); summary != "" {
			parts = append(parts, "OBJECTS: "+summary)
		}
	}

	if activities != "" && !strings.Contains(strings.ToLower(activities), "no activities") {
		if summary := extractActivities(activities); summary != "" {
			parts = append(parts, "ACTIVITY: "+summary)
		}
	}

	if environment != "" {
		if summary := extractEnvironmentInfo(environment); summary != "" {
			parts = append(parts, "SETTING: "+summary)
		}
	}

	composite := strings.Join(parts, " | ")
	if composite == "" {
		composite = general
	}

	joined := make([]string, 0, len(aspects))
	for _, text := range aspects {
		joined = append(joined, text)
	}
	_, kinds := DeriveAlerts(strings.Join(joined, " "))
	if len(kinds) > 0 {
		composite += " | ALERTS: " + strings.Join(kinds, ", ")
	}
	return composite, kinds
}

// ComposeVideoDescription builds the timeline-format composite stored
// for a video detection:
//
//	TIMELINE ANALYSIS (12.0s, 3 events) | EVENTS: 00:05: ... | ... | EVENT TYPES: ... | ALERTS: ...
func ComposeVideoDescription(durationSeconds float64, entries []TimelineEntry, eventTypes []string) (string, []string) {
	if len(entries) == 0 {
		return fmt.Sprintf("Video analysis complete (%.1fs) - No significant events detected", durationSeconds), nil
	}

	parts := []string{fmt.Sprintf("TIMELINE ANALYSIS (%.1fs, %d events)", durationSeconds, len(entries))}

	var timelineEntries []string
	var allText []string
	for _, entry := range entries {
		desc := strings.TrimSpace(entry.Description)
		if desc == "" || strings.HasPrefix(desc, "Error") {
			continue
		}
		timelineEntries = append(timelineEntries, fmt.Sprintf("%s: %s", formatOffset(entry.OffsetSeconds), desc))
		allText = append(allText, desc)
	}
	if len(timelineEntries) > 0 {
		parts = append(parts, "EVENTS: "+strings.Join(timelineEntries, " | "))
	}

	var eventSummary []string
	for _, et := range eventTypes {
		if et == "" || et == "general_activity" {
			continue
		}
		eventSummary = append(eventSummary, titleCase(strings.ReplaceAll(et, "_", " ")))
	}
	if len(eventSummary) > 0 {
		parts = append(parts, "EVENT TYPES: "+strings.Join(eventSummary, ", "))
	}

	composite := strings.Join(parts, " | ")

	_, kinds := DeriveAlerts(strings.Join(allText, " "))
	if len(kinds) > 0 {
		composite += " | ALERTS: " + strings.Join(kinds, ", ")
	}
	return composite, kinds
}

// formatOffset renders a timeline offset as mm:ss.
func formatOffset(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// extractSecurityRelevance condenses the security aspect down to the
// matched priority terms, falling back to a truncated prefix.
func extractSecurityRelevance(securityDesc string) string {
	lower := strings.ToLower(securityDesc)

	var relevant []string
	for _, item := range securityHighPriority {
		if strings.Contains(lower, item) {
			relevant = append(relevant, item)
		}
	}
	for _, item := range securityMediumPriority {
		if strings.Contains(lower, item) && !containsString(relevant, item) {
			relevant = append(relevant, item)
		}
	}
	if len(relevant) > 0 {
		return strings.Join(relevant, ", ")
	}
	return truncate(securityDesc, 50)
}

// extractObjectCounts pulls "<count> <noun>" pairs out of the objects
// aspect.
func extractObjectCounts(objectsDesc string) string {
	matches := objectCountRe.FindAllStringSubmatch(strings.ToLower(objectsDesc), -1)
	var findings []string
	for _, m := range matches {
		findings = append(findings, m[1]+" "+m[2])
	}
	if len(findings) > 0 {
		return strings.Join(findings, ", ")
	}
	return truncate(objectsDesc, 50)
}

// extractActivities reports the first matched keyword per activity
// category.
func extractActivities(activitiesDesc string) string {
	return extractByCategory(activitiesDesc, activityKeywords)
}

// extractEnvironmentInfo reports the first matched keyword per
// environment category.
func extractEnvironmentInfo(environmentDesc string) string {
	return extractByCategory(environmentDesc, environmentKeywords)
}

func extractByCategory(desc string, categories [][]string) string {
	lower := strings.ToLower(desc)
	var detected []string
	for _, keywords := range categories {
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				detected = append(detected, keyword)
				break
			}
		}
	}
	if len(detected) > 0 {
		return strings.Join(detected, ", ")
	}
	return truncate(desc, 50)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func containsString(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
