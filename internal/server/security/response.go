package security

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/gophgate/internal/common"
)

// Generic bodies. No response ever says why a credential failed.
const (
	MsgUnauthorized  = "unauthorized"
	MsgForbidden     = "forbidden"
	MsgInternalError = "internal error"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// WriteUnauthorized writes a 401 with a Bearer challenge.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", common.BearerScheme)
	WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
}

func WriteForbidden(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, MsgForbidden)
}

func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, MsgInternalError)
}
