package rbac

import (
	"context"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Policy maps each quiz role to the permissions it holds. A permission
// ending in "*" grants every permission with that prefix.
type Policy map[quiz.Role][]string

// Allows reports whether role holds at least one of perms. Unknown roles
// hold nothing.
func (p Policy) Allows(role quiz.Role, perms ...string) bool {
	if !role.Valid() {
		return false
	}
	for _, granted := range p[role] {
		for _, perm := range perms {
			if granted == perm || granted == "*" ||
				(strings.HasSuffix(granted, "*") && strings.HasPrefix(perm, strings.TrimSuffix(granted, "*"))) {
				return true
			}
		}
	}
	return false
}

type ctxKey struct{}

func WithRole(ctx context.Context, role quiz.Role) context.Context {
	return context.WithValue(ctx, ctxKey{}, role)
}

func RoleFromContext(ctx context.Context) quiz.Role {
	role, _ := ctx.Value(ctxKey{}).(quiz.Role)
	return role
}
