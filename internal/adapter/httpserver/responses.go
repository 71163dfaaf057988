// Package httpserver contains the judge's HTTP handlers and middleware.
//
// It exposes the REST endpoints for submissions, job queries and retests,
// the user and contest registries, and the ranklist, keeping HTTP concerns
// out of the usecase layer.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// errorEnvelope is the wire form of every failure response.
type errorEnvelope struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the error envelope. The message is the error text
// verbatim; the kind supplies the stable code, reason and HTTP status.
func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindInvalidArgument, domain.KindInvalidState, domain.KindRateLimit:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorEnvelope{Code: kind.Code, Reason: kind.Reason, Message: err.Error()})
}
