package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

var validate = validator.New()

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto status codes. Anything unrecognised is
// logged with the request id and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, quiz.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, quiz.ErrInvalidState), errors.Is(err, quiz.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrBadCredentials):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		log.Printf("[%s] %s %s: %v", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, err)
		writeJSON(w, status, message{"internal server error"})
		return
	}
	writeJSON(w, status, message{err.Error()})
}

// writeReadError is writeError for read endpoints, where asking for a test
// in the wrong state is a bad request rather than a conflict.
func writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, quiz.ErrInvalidState) {
		writeJSON(w, http.StatusBadRequest, message{err.Error()})
		return
	}
	writeError(w, r, err)
}

// decodeJSON reads the body into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: bad json: %v", quiz.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", quiz.ErrValidation, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s", quiz.ErrValidation, name)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: bad %s", quiz.ErrValidation, name)
	}
	return id, nil
}

// identity returns the caller placed in the context by the JWT middleware,
// or the zero Identity, which every engine operation refuses.
func identity(r *http.Request) quiz.Identity {
	id, _ := authmw.IdentityFromContext(r.Context())
	return id
}
