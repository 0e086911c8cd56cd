package middleware

import (
	"context"

	"github.com/dot-do/entitykernel/infrastructure/logging"
)

// GetUserID returns the authenticated tenant/user id carried on ctx by the
// auth middleware, or "" if the request is unauthenticated.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetRole returns the authenticated caller's role carried on ctx, or "" if
// unset.
func GetRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}
