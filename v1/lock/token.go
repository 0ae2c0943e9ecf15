package lock

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/mirkobrombin/go-latch/v1/idgen"
)

// TokenSource produces ownership tokens. Tokens are opaque: they are only
// ever compared for equality.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// UUIDTokens returns random version 4 UUIDs.
func UUIDTokens() TokenSource {
	return TokenFunc(func(context.Context) (string, error) {
		return uuid.NewString(), nil
	})
}

// IDTokens returns identifiers from g rendered in base 10.
func IDTokens(g *idgen.Generator) TokenSource {
	return TokenFunc(func(ctx context.Context) (string, error) {
		id, err := g.NextID(ctx)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(id, 10), nil
	})
}
