package enrich

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Incident is the medical-event record attached to medical_event and
// medical_event_update notifications.
type Incident struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"studentId"`
	StudentName    string     `json:"studentName"`
	ClassName      string     `json:"className"`
	EventType      string     `json:"eventType"`
	Severity       string     `json:"severity"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	Symptoms       string     `json:"symptoms"`
	Treatment      string     `json:"treatment"`
	Medications    []string   `json:"medicationsUsed"`
	Status         string     `json:"status"`
	OccurredAt     *time.Time `json:"occurredAt"`
	HandledBy      string     `json:"handledBy"`
	ParentNotified bool       `json:"parentNotified"`
}

// DecodeIncident parses a medical incident payload. An empty payload is
// an error so callers can fall back to the raw view.
func DecodeIncident(payload json.RawMessage) (*Incident, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return nil, fmt.Errorf("empty incident payload")
	}

	var inc Incident
	if err := json.Unmarshal(payload, &inc); err != nil {
		return nil, fmt.Errorf("decoding incident: %w", err)
	}
	return &inc, nil
}

// Fields returns the non-empty incident fields as label/value pairs in
// display order.
func (i *Incident) Fields() [][2]string {
	var out [][2]string
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			out = append(out, [2]string{label, value})
		}
	}

	student := i.StudentName
	if i.ClassName != "" && student != "" {
		student += " (" + i.ClassName + ")"
	}
	add("Student", student)
	add("Event", i.EventType)
	add("Severity", i.Severity)
	if i.OccurredAt != nil {
		add("Occurred", i.OccurredAt.Local().Format("2006-01-02 15:04"))
	}
	add("Location", i.Location)
	add("Symptoms", i.Symptoms)
	add("Description", i.Description)
	add("Treatment", i.Treatment)
	add("Medications", strings.Join(i.Medications, ", "))
	add("Status", i.Status)
	add("Handled by", i.HandledBy)
	if i.ParentNotified {
		add("Parent notified", "yes")
	}
	return out
}
