package panel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rendis/callgraph/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeGraphError maps a GraphError code onto an HTTP status and writes the
// error as JSON.
func writeGraphError(w http.ResponseWriter, err error) {
	var ge *schema.GraphError
	if !errors.As(err, &ge) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, httpStatus(ge.Code), ge)
}

func httpStatus(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition:
		return http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodePortNotFound:
		return http.StatusBadRequest
	case schema.ErrCodeStore, schema.ErrCodeComponentUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
