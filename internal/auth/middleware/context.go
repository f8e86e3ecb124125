package auth

import (
	"context"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

func WithIdentity(ctx context.Context, id quiz.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the authenticated caller, or false when the
// request carried none.
func IdentityFromContext(ctx context.Context) (quiz.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(quiz.Identity)
	return id, ok && id.UserID != 0
}
