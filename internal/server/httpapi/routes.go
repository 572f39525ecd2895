// Package httpapi is the HTTP transport. Every route is registered with
// exactly one security.Requirement and served through the security pipeline.
package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"github.com/gorilla/mux"
)

type Route struct {
	Name        string
	Method      string
	Path        string
	Requirement security.Requirement
	Handler     http.Handler
}

// Routes is the full route table. metrics may be nil to leave /metrics out.
func (h *Handlers) Routes(metrics http.Handler) []Route {
	routes := []Route{
		{"login", http.MethodPost, "/api/auth/login", security.Public(), http.HandlerFunc(h.Login)},
		{"register", http.MethodPost, "/api/auth/register", security.Public(), http.HandlerFunc(h.Register)},
		{"health", http.MethodGet, "/api/health", security.Public(), http.HandlerFunc(h.Health)},
		{"me", http.MethodGet, "/api/users/me", security.AuthenticatedOnly(), http.HandlerFunc(h.Me)},
		{"admin_get_user", http.MethodGet, "/api/admin/users/{id}", security.RequiresRole(common.RoleAdmin), http.HandlerFunc(h.GetUser)},
		{"admin_set_roles", http.MethodPut, "/api/admin/users/{id}/roles", security.RequiresRole(common.RoleAdmin), http.HandlerFunc(h.SetRoles)},
		{"admin_set_disabled", http.MethodPut, "/api/admin/users/{id}/disabled", security.RequiresRole(common.RoleAdmin), http.HandlerFunc(h.SetDisabled)},
	}
	if metrics != nil {
		routes = append(routes, Route{"metrics", http.MethodGet, "/metrics", security.Public(), metrics})
	}
	return routes
}

// NewRouter registers routes behind the pipeline and wraps the router with
// request-id and access-log middleware.
func NewRouter(routes []Route, pipeline *security.Pipeline, logger logging.Logger) *mux.Router {
	r := mux.NewRouter()

	for _, rt := range routes {
		r.Handle(rt.Path, pipeline.Guard(rt.Requirement, rt.Handler)).Methods(rt.Method).Name(rt.Name)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(RequestID, AccessLog(logger))
	return r
}
