package engine

import (
	"context"
	"fmt"

	"github.com/roach88/orchard/internal/domain"
)

// orchardScopeKey is the context key for the orchard a command is scoped to.
type orchardScopeKey struct{}

// ScopeOrchard restricts commands run with the returned context to records of
// orchardID. Accept, Issue, Execute and FlagCorrection report NOT_FOUND for a
// consultation or prescription belonging to another orchard.
func ScopeOrchard(ctx context.Context, orchardID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, orchardScopeKey{}, orchardID)
}

// OrchardScope returns the orchard stored by ScopeOrchard.
func OrchardScope(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(orchardScopeKey{}).(string)
	return id, ok
}

// checkScope rejects c when ctx is scoped to a different orchard. The
// mismatch reads as NOT_FOUND so ids from other orchards are not confirmed.
func checkScope(ctx context.Context, op, id string, c domain.Consultation) error {
	want, ok := OrchardScope(ctx)
	if !ok || c.OrchardID == want {
		return nil
	}
	return &Error{
		Code:     ErrCodeNotFound,
		Op:       op,
		Message:  fmt.Sprintf("%s not found in orchard %s", id, want),
		EntityID: id,
	}
}
