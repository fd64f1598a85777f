package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/livraison-express/api-server-go/internal/errors"
	"github.com/livraison-express/api-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON parses a request body into dst, translating malformed input
// into a validation error response. Returns false when the response has
// already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body").WithCause(err))
		return false
	}
	return true
}
