// internal/auth/middleware/attach_role.go
package auth

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// AttachRoleFromDB replaces the role carried by the token with the one
// currently stored for the user, so role changes apply before the token
// expires. Unknown users are rejected.
func AttachRoleFromDB(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, ok := IdentityFromContext(ctx)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, id.UserID).Scan(&role)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				log.Printf("[%s] role lookup for user %d: %v", middleware.GetReqID(ctx), id.UserID, err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			id.Role = quiz.Role(role)
			ctx = WithIdentity(ctx, id)
			next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, id.Role)))
		})
	}
}
