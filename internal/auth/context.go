package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxAccountID
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	UserID    string
	AccountID string
	Role      string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxAccountID, id.AccountID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	return ctx
}

// IdentityFrom returns the caller identity; AccountID is mandatory.
func IdentityFrom(ctx context.Context) (Identity, error) {
	id := Identity{
		UserID:    stringValue(ctx, ctxUserID),
		AccountID: stringValue(ctx, ctxAccountID),
		Role:      stringValue(ctx, ctxRole),
	}
	if id.AccountID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

func AccountID(ctx context.Context) (string, error) {
	if s := stringValue(ctx, ctxAccountID); s != "" {
		return s, nil
	}
	return "", errors.New("account_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if s := stringValue(ctx, ctxRole); s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

func stringValue(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}
