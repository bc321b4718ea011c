package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/health-notify/internal/model"
)

var roles = []model.Role{model.RoleAdmin, model.RoleManager, model.RoleNurse, model.RoleParent, ""}

func TestDispatchIsTotal(t *testing.T) {
	types := append(Types(), "something_new", "")
	for _, typ := range types {
		for _, role := range roles {
			for _, related := range []model.RelatedRefs{nil, {model.RefStudentID: 3, model.RefCampaignID: "c9"}} {
				n := model.Notification{ID: "n1", Type: typ, Related: related}
				a := Dispatch(n, role)
				assert.NotEmpty(t, a.Kind, "type %q role %q", typ, role)
				assert.NotEmpty(t, a.Route, "type %q role %q", typ, role)
				assert.Equal(t, "n1", a.NotificationID)
				assert.NotNil(t, a.Params)
			}
		}
	}
}

func TestUnknownTypeOpensGenericDetail(t *testing.T) {
	a := Dispatch(model.Notification{ID: "9", Type: "brand_new"}, model.RoleNurse)
	assert.Equal(t, KindOpenDetail, a.Kind)
	assert.Equal(t, "/nurse/notifications/9", a.Route)
	assert.False(t, a.Enrich)

	d := Describe("brand_new")
	assert.Equal(t, model.Type("brand_new"), d.Type)
	assert.Equal(t, "Notification", d.Label)
	assert.False(t, Known("brand_new"))
}

func TestMedicalEventOpensEnrichedDetail(t *testing.T) {
	for _, typ := range []model.Type{model.TypeMedicalEvent, model.TypeMedicalEventUpdate} {
		n := model.Notification{ID: "7", Type: typ, Related: model.RelatedRefs{model.RefEventID: "ev1"}}
		a := Dispatch(n, model.RoleParent)
		assert.Equal(t, KindOpenDetail, a.Kind)
		assert.True(t, a.Enrich)
		assert.Equal(t, "/parent/notifications/7", a.Route)
		assert.Equal(t, "ev1", a.Params[model.RefEventID])
		assert.True(t, Describe(typ).Enrich)
	}
}

func TestMedicationRouteDependsOnRole(t *testing.T) {
	n := model.Notification{ID: "1", Type: model.TypeMedicationRequest, Related: model.RelatedRefs{model.RefRequestID: 12}}

	staff := Dispatch(n, model.RoleNurse)
	assert.Equal(t, KindNavigate, staff.Kind)
	assert.Equal(t, "/nurse/medication-requests/12", staff.Route)

	family := Dispatch(n, model.RoleParent)
	assert.Equal(t, "/parent/medications", family.Route)
	assert.Equal(t, "12", family.Params["highlight"])
	assert.Equal(t, "12", family.Params[model.RefRequestID])
}

func TestMissingReferenceFallsBackToListPage(t *testing.T) {
	a := Dispatch(model.Notification{ID: "1", Type: model.TypeMedicationApproved}, model.RoleAdmin)
	assert.Equal(t, "/admin/medication-requests", a.Route)

	a = Dispatch(model.Notification{ID: "1", Type: model.TypeHealthCheckResult}, model.RoleParent)
	assert.Equal(t, "/parent/health-checks", a.Route)

	a = Dispatch(model.Notification{ID: "1", Type: model.TypeVaccinationConsent}, model.RoleManager)
	assert.Equal(t, "/manager/vaccinations/consents", a.Route)
}

func TestFamilyRoutesUseStudentPage(t *testing.T) {
	n := model.Notification{ID: "1", Type: model.TypeVaccinationResult, Related: model.RelatedRefs{model.RefStudentID: "s5"}}
	assert.Equal(t, "/parent/students/s5/vaccinations", Dispatch(n, model.RoleParent).Route)
	assert.Equal(t, "/nurse/vaccinations/results/s5", Dispatch(n, model.RoleNurse).Route)
}

func TestUnknownRoleUsesGenericDashboard(t *testing.T) {
	a := Dispatch(model.Notification{ID: "1", Type: model.TypeProfileUpdateApproved}, "")
	assert.Equal(t, "/dashboard/profile", a.Route)
}

func TestEveryKnownTypeHasDescriptor(t *testing.T) {
	types := Types()
	require.NotEmpty(t, types)
	for _, typ := range types {
		d := Describe(typ)
		assert.Equal(t, typ, d.Type)
		assert.NotEmpty(t, d.Label, "type %q", typ)
		assert.NotEmpty(t, d.Icon, "type %q", typ)
		assert.NotEmpty(t, d.Category, "type %q", typ)
		assert.True(t, Known(typ))
	}
}

func TestReferenceValuesStayInsideTheirSegment(t *testing.T) {
	hostile := model.RelatedRefs{model.RefStudentID: "a/../../admin", model.RefCampaignID: ".."}

	n := model.Notification{ID: "1", Type: model.TypeVaccinationResult, Related: hostile}
	assert.Equal(t, "/parent/students/a%2F..%2F..%2Fadmin/vaccinations", Dispatch(n, model.RoleParent).Route)
	assert.Equal(t, "/nurse/vaccinations/results/a%2F..%2F..%2Fadmin", Dispatch(n, model.RoleNurse).Route)

	n = model.Notification{ID: "1", Type: model.TypeVaccinationConsent, Related: hostile}
	assert.Equal(t, "/manager/vaccinations/campaigns/%2E%2E/consents", Dispatch(n, model.RoleManager).Route)
	assert.Equal(t, "/parent/consents/%2E%2E", Dispatch(n, model.RoleParent).Route)

	n = model.Notification{ID: "x/../y", Type: "brand_new"}
	assert.Equal(t, "/nurse/notifications/x%2F..%2Fy", Dispatch(n, model.RoleNurse).Route)

	// Params keep the raw value.
	a := Dispatch(model.Notification{Type: model.TypeStudentAssigned, Related: hostile}, model.RoleNurse)
	assert.Equal(t, "/nurse/students/a%2F..%2F..%2Fadmin", a.Route)
	assert.Equal(t, "a/../../admin", a.Params[model.RefStudentID])
}
