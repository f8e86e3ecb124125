package rbac

import "github.com/mind-engage/mindengage-quiz/internal/quiz"

// Permissions used by the HTTP routes.
const (
	PermTestView      = "test:view"
	PermTestCreate    = "test:create"
	PermTestManage    = "test:manage"
	PermAttemptSubmit = "attempt:submit"
	PermResultsView   = "results:view"
	PermResultsReset  = "results:reset"
	PermUsersManage   = "users:manage"
)

// Default is the route-level policy. It only gates coarse access;
// ownership of a test is decided by the engine.
var Default = Policy{
	quiz.RoleStudent: {
		PermTestView,
		PermAttemptSubmit,
	},
	quiz.RoleTeacher: {
		PermTestView,
		PermAttemptSubmit,
		"test:*",
		"results:*",
	},
	quiz.RoleAdmin: {
		"*",
	},
}
