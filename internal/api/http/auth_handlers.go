package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
)

func RegisterHandler(acc *auth.Accounts, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !enabled {
			writeJSON(w, http.StatusForbidden, message{"registration is disabled"})
			return
		}
		var in auth.Registration
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := acc.Register(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "registered", "userId": u.ID})
	}
}

func LoginHandler(acc *auth.Accounts, a *authmw.AuthService) http.HandlerFunc {
	type req struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := acc.Authenticate(r.Context(), in.Email, in.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tok, err := a.IssueJWT(u.ID, u.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": tok, "user": u})
	}
}

func MeHandler(acc *auth.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := acc.Get(r.Context(), identity(r).UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
	}
}
