package transport

import (
	"context"

	"github.com/rhuss/warden/pkg/auth"
)

type identityHolder struct {
	identity *auth.Identity
}

type identityHolderKey struct{}

func withIdentityHolder(ctx context.Context, h *identityHolder) context.Context {
	return context.WithValue(ctx, identityHolderKey{}, h)
}

func identityHolderFrom(ctx context.Context) *identityHolder {
	h, _ := ctx.Value(identityHolderKey{}).(*identityHolder)
	return h
}
