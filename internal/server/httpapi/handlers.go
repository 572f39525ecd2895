package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"github.com/dmitrijs2005/gophgate/internal/server/services"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type LoginResponse struct {
	Token       string `json:"token"`
	TokenType   string `json:"tokenType"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Secret      string `json:"secret"`
}

type RolesRequest struct {
	Roles []string `json:"roles"`
}

type DisabledRequest struct {
	Disabled *bool `json:"disabled"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Roles       []string  `json:"roles"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Roles:       u.Roles,
		Disabled:    u.Disabled,
		CreatedAt:   u.CreatedAt,
	}
}

type Handlers struct {
	users  *services.UserService
	logger logging.Logger
}

func NewHandlers(users *services.UserService, logger logging.Logger) *Handlers {
	return &Handlers{users: users, logger: logger.With("module", "httpapi")}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.users.Login(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			security.WriteUnauthorized(w)
			return
		}
		h.internalError(w, r, "login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:       res.Token,
		TokenType:   res.TokenType,
		ExpiresInMs: res.ExpiresIn.Milliseconds(),
	})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.users.Register(r.Context(), req.Username, req.DisplayName, req.Secret)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, userResponse(u))
	case errors.Is(err, common.ErrorValidation):
		security.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		security.WriteError(w, http.StatusConflict, "username taken")
	default:
		h.internalError(w, r, "register failed", err)
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the caller's identity as resolved for this request.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := security.FromContext(r.Context()).Identity()
	if !ok {
		security.WriteUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

func (h *Handlers) SetRoles(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.users.SetRoles(r.Context(), mux.Vars(r)["id"], req.Roles); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SetDisabled(w http.ResponseWriter, r *http.Request) {
	var req DisabledRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Disabled == nil {
		security.WriteError(w, http.StatusBadRequest, "disabled is required")
		return
	}
	if err := h.users.SetDisabled(r.Context(), mux.Vars(r)["id"], *req.Disabled); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		security.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorValidation):
		security.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, "request failed", err)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(r.Context(), msg, "error", err, "path", r.URL.Path)
	security.WriteInternalError(w)
}

// decode reads a single JSON object. On failure it has already written a 400.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		security.WriteError(w, http.StatusBadRequest, "bad request")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		security.WriteError(w, http.StatusBadRequest, "bad request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
