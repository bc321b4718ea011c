// Package routing maps a notification to the UI action it triggers when
// opened, and holds the label and icon for every notification type.
// It is the single place that knows about notification types; views ask
// it instead of switching on types themselves.
package routing

import (
	"net/url"
	"sort"
	"strings"

	"github.com/nhle/health-notify/internal/model"
)

// Kind distinguishes navigation from opening an in-place detail view.
type Kind string

const (
	KindNavigate   Kind = "navigate"
	KindOpenDetail Kind = "open_detail"
)

// Action is what the UI should do when a notification is opened.
type Action struct {
	Kind Kind

	// Route is the dashboard path to navigate to. For KindOpenDetail it
	// is the deep link of the detail view.
	Route string

	// Params carries entity references drawn from the notification.
	Params map[string]string

	// NotificationID identifies the notification the action came from.
	NotificationID string

	// Enrich is true when the detail view should load the related record.
	Enrich bool
}

// Category groups types for styling.
type Category string

const (
	CategoryMedical     Category = "medical"
	CategoryHealthCheck Category = "health_check"
	CategoryVaccination Category = "vaccination"
	CategoryMedication  Category = "medication"
	CategoryCampaign    Category = "campaign"
	CategoryProfile     Category = "profile"
	CategorySupply      Category = "supply"
	CategoryGeneral     Category = "general"
)

// Descriptor is the presentation and routing entry for one type.
type Descriptor struct {
	Type     model.Type
	Label    string
	Icon     string
	Category Category

	// Enrich marks types whose message is only a summary of a richer
	// record the detail view should fetch.
	Enrich bool

	route func(n model.Notification, role model.Role) Action
}

// generic is used for any type not in the table.
var generic = Descriptor{
	Type:     model.TypeGeneral,
	Label:    "Notification",
	Icon:     "•",
	Category: CategoryGeneral,
	route:    openDetail(false),
}

var table = map[model.Type]Descriptor{
	model.TypeMedicalEvent: {
		Label: "Medical incident", Icon: "✚", Category: CategoryMedical, Enrich: true,
		route: openDetail(true),
	},
	model.TypeMedicalEventUpdate: {
		Label: "Incident update", Icon: "✚", Category: CategoryMedical, Enrich: true,
		route: openDetail(true),
	},
	model.TypeHealthCheck: {
		Label: "Health check", Icon: "♥", Category: CategoryHealthCheck,
		route: byRole(
			navigate("health-checks", model.RefCampaignID),
			navigate("health-checks", model.RefCampaignID),
		),
	},
	model.TypeHealthCheckResult: {
		Label: "Health check result", Icon: "♥", Category: CategoryHealthCheck,
		route: byRole(
			navigate("health-checks/results", model.RefStudentID),
			studentPage("health-checks"),
		),
	},
	model.TypeVaccination: {
		Label: "Vaccination", Icon: "⚕", Category: CategoryVaccination,
		route: byRole(
			navigate("vaccinations/campaigns", model.RefCampaignID),
			navigate("vaccinations", ""),
		),
	},
	model.TypeVaccinationReminder: {
		Label: "Vaccination reminder", Icon: "⚕", Category: CategoryVaccination,
		route: byRole(
			navigate("vaccinations/campaigns", model.RefCampaignID),
			navigate("vaccinations", ""),
		),
	},
	model.TypeVaccinationConsent: {
		Label: "Vaccination consent", Icon: "✎", Category: CategoryVaccination,
		route: byRole(
			consents(),
			navigate("consents", model.RefCampaignID),
		),
	},
	model.TypeConsentRequest: {
		Label: "Consent request", Icon: "✎", Category: CategoryVaccination,
		route: byRole(
			consents(),
			navigate("consents", model.RefCampaignID),
		),
	},
	model.TypeConsentResponse: {
		Label: "Consent response", Icon: "✎", Category: CategoryVaccination,
		route: byRole(
			consents(),
			navigate("consents", model.RefCampaignID),
		),
	},
	model.TypeVaccinationResult: {
		Label: "Vaccination result", Icon: "⚕", Category: CategoryVaccination,
		route: byRole(
			navigate("vaccinations/results", model.RefStudentID),
			studentPage("vaccinations"),
		),
	},
	model.TypeMedicationRequest: {
		Label: "Medication request", Icon: "℞", Category: CategoryMedication,
		route: medication(),
	},
	model.TypeMedicationApproved: {
		Label: "Medication approved", Icon: "℞", Category: CategoryMedication,
		route: medication(),
	},
	model.TypeMedicationRejected: {
		Label: "Medication rejected", Icon: "℞", Category: CategoryMedication,
		route: medication(),
	},
	model.TypeMedicationGiven: {
		Label: "Medication given", Icon: "℞", Category: CategoryMedication,
		route: medication(),
	},
	model.TypeCampaignCreated: {
		Label: "New campaign", Icon: "⚑", Category: CategoryCampaign,
		route: campaign(),
	},
	model.TypeCampaignUpdated: {
		Label: "Campaign updated", Icon: "⚑", Category: CategoryCampaign,
		route: campaign(),
	},
	model.TypeCampaignCancelled: {
		Label: "Campaign cancelled", Icon: "⚑", Category: CategoryCampaign,
		route: campaign(),
	},
	model.TypeCampaignDeleted: {
		// The campaign is gone; send the user to the list instead.
		Label: "Campaign deleted", Icon: "⚑", Category: CategoryCampaign,
		route: byRole(
			navigate("campaigns", ""),
			navigate("vaccinations", ""),
		),
	},
	model.TypeProfileUpdateRequest: {
		Label: "Profile update request", Icon: "☺", Category: CategoryProfile,
		route: byRole(
			navigate("profile-requests", model.RefRequestID),
			navigate("profile", ""),
		),
	},
	model.TypeProfileUpdateApproved: {
		Label: "Profile update approved", Icon: "☺", Category: CategoryProfile,
		route: navigate("profile", ""),
	},
	model.TypeProfileUpdateRejected: {
		Label: "Profile update rejected", Icon: "☺", Category: CategoryProfile,
		route: navigate("profile", ""),
	},
	model.TypeSupplyLowStock: {
		Label: "Low stock", Icon: "▣", Category: CategorySupply,
		route: byRole(
			navigate("medical-supplies", model.RefSupplyID),
			openDetail(false),
		),
	},
	model.TypeStudentAssigned: {
		Label: "Student assigned", Icon: "☺", Category: CategoryGeneral,
		route: navigate("students", model.RefStudentID),
	},
	model.TypeSystem: {
		Label: "System", Icon: "⚙", Category: CategoryGeneral,
		route: openDetail(false),
	},
	model.TypeGeneral: generic,
}

func init() {
	for t, d := range table {
		d.Type = t
		table[t] = d
	}
}

// Describe returns the descriptor for t, or the generic descriptor for an
// unknown type. The returned descriptor's Type is always t.
func Describe(t model.Type) Descriptor {
	d, ok := table[t]
	if !ok {
		d = generic
		d.Type = t
	}
	return d
}

// Known reports whether t has a dedicated entry.
func Known(t model.Type) bool {
	_, ok := table[t]
	return ok
}

// Types returns every known type in sorted order.
func Types() []model.Type {
	out := make([]model.Type, 0, len(table))
	for t := range table {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch returns the action for n as seen by a user with role.
// It is total: unknown types and missing references still yield an
// action.
func Dispatch(n model.Notification, role model.Role) Action {
	d := Describe(n.Type)
	route := d.route
	if route == nil {
		route = generic.route
	}
	a := route(n, role)
	a.NotificationID = n.ID
	if a.Params == nil {
		a.Params = map[string]string{}
	}
	for _, key := range []string{
		model.RefStudentID, model.RefCampaignID, model.RefEventID,
		model.RefRequestID, model.RefClassID, model.RefSupplyID,
	} {
		if v := n.Related.String(key); v != "" {
			if _, set := a.Params[key]; !set {
				a.Params[key] = v
			}
		}
	}
	return a
}

// dashboard returns the route prefix of the role's dashboard.
func dashboard(role model.Role) string {
	switch role {
	case model.RoleAdmin, model.RoleManager, model.RoleNurse, model.RoleParent:
		return "/" + string(role)
	default:
		return "/dashboard"
	}
}

// join appends non-empty path segments.
func join(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// segment escapes a reference value so it stays one path segment.
func segment(ref string) string {
	if ref == "." || ref == ".." {
		return strings.ReplaceAll(ref, ".", "%2E")
	}
	return url.PathEscape(ref)
}

// navigate routes to <dashboard>/<section>[/<ref>]. When the reference is
// missing the section's list page is used.
func navigate(section, refKey string) func(model.Notification, model.Role) Action {
	return func(n model.Notification, role model.Role) Action {
		id := ""
		if refKey != "" {
			id = n.Related.String(refKey)
		}
		return Action{Kind: KindNavigate, Route: join(dashboard(role), section, segment(id))}
	}
}

// openDetail opens the in-place detail view. The route is its deep link.
func openDetail(enrich bool) func(model.Notification, model.Role) Action {
	return func(n model.Notification, role model.Role) Action {
		return Action{
			Kind:   KindOpenDetail,
			Route:  join(dashboard(role), "notifications", segment(n.ID)),
			Enrich: enrich,
		}
	}
}

// byRole picks the staff or family variant.
func byRole(staff, family func(model.Notification, model.Role) Action) func(model.Notification, model.Role) Action {
	return func(n model.Notification, role model.Role) Action {
		if role.IsStaff() {
			return staff(n, role)
		}
		return family(n, role)
	}
}

// studentPage routes a family member to a section of their child's page.
func studentPage(section string) func(model.Notification, model.Role) Action {
	return func(n model.Notification, role model.Role) Action {
		student := n.Related.String(model.RefStudentID)
		if student == "" {
			return Action{Kind: KindNavigate, Route: join(dashboard(role), section)}
		}
		return Action{Kind: KindNavigate, Route: join(dashboard(role), "students", segment(student), section)}
	}
}

// medication sends staff to the review screen of the request and family
// members to their child's medication list.
func medication() func(model.Notification, model.Role) Action {
	return byRole(
		navigate("medication-requests", model.RefRequestID),
		func(n model.Notification, role model.Role) Action {
			a := Action{Kind: KindNavigate, Route: join(dashboard(role), "medications")}
			if req := n.Related.String(model.RefRequestID); req != "" {
				a.Params = map[string]string{"highlight": req}
			}
			return a
		},
	)
}

func campaign() func(model.Notification, model.Role) Action {
	return byRole(
		navigate("campaigns", model.RefCampaignID),
		navigate("vaccinations", ""),
	)
}

func consents() func(model.Notification, model.Role) Action {
	return func(n model.Notification, role model.Role) Action {
		c := n.Related.String(model.RefCampaignID)
		if c == "" {
			return Action{Kind: KindNavigate, Route: join(dashboard(role), "vaccinations", "consents")}
		}
		return Action{Kind: KindNavigate, Route: join(dashboard(role), "vaccinations", "campaigns", segment(c), "consents")}
	}
}
