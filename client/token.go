package client

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter/v2"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/id128"
)

const (
	tokenCacheMaxLen = 10_000
	tokenCacheTTL    = 30 * time.Second
)

// AccessToken is a decoded, verified access token: the raw JWT alongside
// the claims the client runtime cares about.
type AccessToken struct {
	JWT              string
	EntityID         id128.EntityId
	EntityAttributes id128.AttrSet
	IssuedAt         time.Time
	ExpiresAt        time.Time
}

// tokenClaims is the JWT claim set an access token carries, per the
// authority's authly.entity_id/authly.entity_attributes extension on top
// of the standard iat/exp registered claims.
type tokenClaims struct {
	jwt.RegisteredClaims
	EntityID         string   `json:"authly.entity_id"`
	EntityAttributes []string `json:"authly.entity_attributes"`
}

// tokenCache memoizes decoded access tokens by their raw JWT string,
// avoiding a repeat ECDSA signature verification for a token presented
// more than once within its TTL.
type tokenCache struct {
	cache *otter.Cache[string, *AccessToken]
}

func newTokenCache() *tokenCache {
	c, err := otter.New(&otter.Options[string, *AccessToken]{
		MaximumSize:      tokenCacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *AccessToken](tokenCacheTTL),
	})
	if err != nil {
		// Options above are static and always valid; otter.New can only
		// fail on a malformed Options value.
		panic(fmt.Sprintf("client: build access token cache: %v", err))
	}
	return &tokenCache{cache: c}
}

// GetAccessToken exchanges a session cookie for a signed access token and
// decodes it.
func (c *Client) GetAccessToken(ctx context.Context, sessionCookie string) (*AccessToken, error) {
	jwtStr, err := c.reconciler.Client().GetAccessToken(ctx, sessionCookie)
	if err != nil {
		return nil, err
	}
	return c.DecodeAccessToken(jwtStr)
}

// DecodeAccessToken verifies and decodes a previously obtained access
// token, without a round trip to the authority. Verification uses the EC
// public key derived from the current connection's CA certificate.
func (c *Client) DecodeAccessToken(raw string) (*AccessToken, error) {
	if tok, ok := c.tokens.cache.GetIfPresent(raw); ok {
		if c.opts.Metrics != nil {
			c.opts.Metrics.AccessTokenCacheHits.Inc()
		}
		return tok, nil
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.AccessTokenCacheMisses.Inc()
	}

	key := c.reconciler.Params().JWTDecodingKey
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrInvalidAccessToken, err)
	}

	entityID, err := id128.Parse(claims.EntityID, id128.Entity)
	if err != nil {
		return nil, fmt.Errorf("%w: authly.entity_id: %v", authlyerr.ErrInvalidAccessToken, err)
	}
	attrs := make(id128.AttrSet, len(claims.EntityAttributes))
	for _, s := range claims.EntityAttributes {
		id, err := id128.Parse(s, id128.Attr)
		if err != nil {
			return nil, fmt.Errorf("%w: authly.entity_attributes: %v", authlyerr.ErrInvalidAccessToken, err)
		}
		attrs[id] = struct{}{}
	}

	tok := &AccessToken{
		JWT:              raw,
		EntityID:         entityID,
		EntityAttributes: attrs,
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}

	c.tokens.cache.Set(raw, tok)
	return tok, nil
}
