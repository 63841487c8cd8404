package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
)

// Register mounts the clinic API on mux. Every route requires a bearer token;
// the company always comes from the token. limit, when set, runs after
// authentication so it can key on the tenant.
func Register(mux *http.ServeMux, verifier auth.Verifier, limit httpx.Middleware, appts *AppointmentHandler, recon *ReconcileHandler) {
	route := func(path string, h http.HandlerFunc, roles []auth.Role) {
		inner := httpx.Chain(auth.RequireRole(h, roles...), limit)
		mux.Handle(path, auth.RequireAuth(inner, verifier))
	}

	route("/api/v1/appointments", appts.Appointments, auth.StaffRoles)
	route("/api/v1/appointments/update", appts.Update, auth.StaffRoles)
	route("/api/v1/appointments/status", appts.Status, auth.StaffRoles)
	route("/api/v1/appointments/pay", appts.Pay, auth.AdminRoles)

	route("/api/v1/reconciliation/diagnose", recon.Diagnose, auth.AdminRoles)
	route("/api/v1/reconciliation/backfill", recon.Backfill, auth.AdminRoles)
	route("/api/v1/reconciliation/regenerate", recon.Regenerate, []auth.Role{auth.RoleOwner})
}
