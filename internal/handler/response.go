package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/industrialcatalog/catalog-server/internal/errors"
	"github.com/industrialcatalog/catalog-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// decodeJSON reads a single JSON object from the request body. Unknown
// fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.ValidationError("Request body too large")
		}
		return apperrors.ValidationError("Invalid JSON body")
	}
	return nil
}
