package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a notification as seen by the client.
// Deletion is not a status: a deleted notification is removed from the
// client collection entirely.
type Status string

const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusArchived  Status = "ARCHIVED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusArchived:
		return true
	default:
		return false
	}
}

// Type identifies the category of event a notification represents.
// The set is closed in practice but unknown values must be tolerated.
type Type string

const (
	TypeMedicalEvent          Type = "medical_event"
	TypeMedicalEventUpdate    Type = "medical_event_update"
	TypeHealthCheck           Type = "health_check"
	TypeHealthCheckResult     Type = "health_check_result"
	TypeVaccination           Type = "vaccination"
	TypeVaccinationConsent    Type = "vaccination_consent"
	TypeVaccinationResult     Type = "vaccination_result"
	TypeVaccinationReminder   Type = "vaccination_reminder"
	TypeMedicationRequest     Type = "medication_request"
	TypeMedicationApproved    Type = "medication_approved"
	TypeMedicationRejected    Type = "medication_rejected"
	TypeMedicationGiven       Type = "medication_given"
	TypeCampaignCreated       Type = "campaign_created"
	TypeCampaignUpdated       Type = "campaign_updated"
	TypeCampaignDeleted       Type = "campaign_deleted"
	TypeCampaignCancelled     Type = "campaign_cancelled"
	TypeConsentRequest        Type = "consent_request"
	TypeConsentResponse       Type = "consent_response"
	TypeProfileUpdateRequest  Type = "profile_update_request"
	TypeProfileUpdateApproved Type = "profile_update_approved"
	TypeProfileUpdateRejected Type = "profile_update_rejected"
	TypeSupplyLowStock        Type = "supply_low_stock"
	TypeStudentAssigned       Type = "student_assigned"
	TypeSystem                Type = "system"
	TypeGeneral               Type = "general"
)

// Role is the dashboard role of the signed-in user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleNurse   Role = "nurse"
	RoleParent  Role = "parent"
)

// IsStaff reports whether the role belongs to school staff rather than
// a family member.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleNurse:
		return true
	default:
		return false
	}
}

// RelatedRefs holds loosely typed references to the entities a
// notification is about (e.g., studentId, campaignId, eventId).
type RelatedRefs map[string]any

// Well-known keys in RelatedRefs.
const (
	RefStudentID  = "studentId"
	RefCampaignID = "campaignId"
	RefEventID    = "eventId"
	RefRequestID  = "requestId"
	RefClassID    = "classId"
	RefSupplyID   = "supplyId"
)

// String returns the reference value for key formatted as a string.
// Numeric JSON values are rendered without a fractional part.
func (r RelatedRefs) String(key string) string {
	if r == nil {
		return ""
	}
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Notification is a server-issued record representing one asynchronous
// event relevant to a user. The client only caches it.
type Notification struct {
	// ID is the opaque, immutable server identifier.
	ID string `json:"id"`

	// OwnerID is the user this notification belongs to.
	OwnerID string `json:"ownerId"`

	// Type determines routing, icon and label.
	Type Type `json:"type"`

	// Status is the lifecycle state. Only the lifecycle package changes it.
	Status Status `json:"status"`

	// PriorStatus is the status held before archiving, used by restore.
	PriorStatus Status `json:"priorStatus,omitempty"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// CreatedAt is when the server created the notification.
	CreatedAt time.Time `json:"createdAt"`

	SentAt     *time.Time `json:"sentAt,omitempty"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`

	// Related carries entity references used for navigation and
	// detail enrichment.
	Related RelatedRefs `json:"relatedEntityRefs,omitempty"`
}

// UnmarshalJSON accepts id and ownerId as either JSON strings or numbers.
// Numbers are kept in their literal form, so 1 and "1" decode alike.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	aux := struct {
		*plain
		ID      flexID `json:"id"`
		OwnerID flexID `json:"ownerId"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.ID = string(aux.ID)
	n.OwnerID = string(aux.OwnerID)
	return nil
}

// flexID decodes an identifier sent as a string or a number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*f = flexID(num.String())
	return nil
}

// Clone returns a copy of n that shares no mutable state with it.
func (n Notification) Clone() Notification {
	out := n
	out.SentAt = cloneTime(n.SentAt)
	out.ReadAt = cloneTime(n.ReadAt)
	out.ArchivedAt = cloneTime(n.ArchivedAt)
	if n.Related != nil {
		out.Related = make(RelatedRefs, len(n.Related))
		for k, v := range n.Related {
			out.Related[k] = v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Filter selects the notifications a sync engine tracks.
// Empty fields match everything.
type Filter struct {
	Type   Type
	Status Status
}

// Key returns a stable identifier for the filter, used to key engine
// instances and cached snapshots.
func (f Filter) Key() string {
	t := string(f.Type)
	if t == "" {
		t = "*"
	}
	s := string(f.Status)
	if s == "" {
		s = "*"
	}
	return t + "|" + s
}
