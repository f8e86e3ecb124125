package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
)

func ListUsersHandler(acc *auth.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := acc.List(r.Context())
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// AdminUpdateUserHandler applies a partial update to any account, role
// included. Demoting the last admin is refused.
func AdminUpdateUserHandler(acc *auth.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "userID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var in auth.UserUpdate
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := acc.Update(r.Context(), id, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
