// Package respond writes the JSON bodies shared by every handler.
package respond

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ayush/task-manager/internal/validation"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// Detail writes {"detail": msg}.
func Detail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"detail": msg})
}

// Invalid writes a 422 listing the rejected fields. Errors that are not
// validation failures are treated as internal.
func Invalid(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		Internal(w, r, err)
		return
	}
	JSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": verr.Fields})
}

// Internal logs err and writes a generic 500.
func Internal(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	Detail(w, http.StatusInternalServerError, "internal server error")
}
