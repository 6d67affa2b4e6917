package access

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/r3e-network/objectstore/infrastructure/cache"
	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/store"
)

// resolverCacheTTL mirrors infrastructure/middleware/serviceauth.go's
// validated-token cache window: 5 minutes, short enough that a revoked
// principal's roles go stale for no longer than that even though tokens
// themselves carry no revocation list.
const resolverCacheTTL = 5 * time.Minute

// DefaultTokenExpiry mirrors serviceauth.DefaultServiceTokenExpiry — one
// hour, the teacher's default for short-lived signed tokens.
const DefaultTokenExpiry = 1 * time.Hour

// Claims is the JWT payload a principal's token carries: its identifier
// and resolved group memberships, generalized from
// infrastructure/serviceauth.ServiceClaims's single ServiceID field.
type Claims struct {
	Principal string   `json:"principal"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenGenerator mints signed principal tokens. Grounded on
// infrastructure/serviceauth.ServiceTokenGenerator, generalized from one
// fixed service identity to an arbitrary provisioned Identity.
type TokenGenerator struct {
	privateKey *rsa.PrivateKey
	issuer     string
	expiry     time.Duration
}

// NewTokenGenerator returns a generator signing with privateKey under the
// given issuer. expiry of 0 uses DefaultTokenExpiry.
func NewTokenGenerator(privateKey *rsa.PrivateKey, issuer string, expiry time.Duration) *TokenGenerator {
	if expiry == 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenGenerator{privateKey: privateKey, issuer: issuer, expiry: expiry}
}

// Generate signs a token asserting id's principal and roles.
func (g *TokenGenerator) Generate(id Identity) (string, error) {
	now := time.Now()
	roles := make([]string, len(id.Roles))
	for i, r := range id.Roles {
		roles[i] = string(r)
	}
	claims := &Claims{
		Principal: string(id.Principal),
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
			Issuer:    g.issuer,
			Subject:   string(id.Principal),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(g.privateKey)
}

// Resolver validates a principal token and resolves it to an Identity.
// Grounded on infrastructure/middleware.ServiceAuthMiddleware's
// validateServiceToken, generalized from a fixed allowed-service list to
// an arbitrary principal plus its carried roles. Caches validated tokens
// via infrastructure/cache (the teacher's ServiceAuthMiddleware hand-rolls
// an equivalent map+mutex cache inline; here it's the shared package
// instead) so a hot path doesn't pay RSA signature verification on every
// request.
type Resolver struct {
	publicKey *rsa.PublicKey
	issuer    string
	cache     *cache.Cache
}

// NewResolver returns a Resolver trusting tokens signed for issuer and
// verifiable with publicKey.
func NewResolver(publicKey *rsa.PublicKey, issuer string) *Resolver {
	return &Resolver{
		publicKey: publicKey,
		issuer:    issuer,
		cache:     cache.NewCache(cache.CacheConfig{DefaultTTL: resolverCacheTTL, MaxSize: 10000, CleanupInterval: resolverCacheTTL}),
	}
}

// Resolve parses and validates tokenString, returning the Identity it
// asserts. The returned Identity's Principal is never store.AdminPrincipal
// — a caller cannot authenticate directly as the bypass sentinel; Identity
// carries RoleAdmin as a separate membership instead.
func (r *Resolver) Resolve(tokenString string) (Identity, error) {
	if r.publicKey == nil {
		return Identity{}, infraerrors.Internal("principal authentication is not configured", nil)
	}

	if cached, ok := r.cache.Get(tokenString); ok {
		return cached.(Identity), nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, infraerrors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return r.publicKey, nil
	})
	if err != nil {
		return Identity{}, infraerrors.InvalidToken(err)
	}
	if !token.Valid {
		return Identity{}, infraerrors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Identity{}, infraerrors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	if claims.Principal == "" {
		return Identity{}, infraerrors.InvalidToken(nil).WithDetails("reason", "missing principal claim")
	}
	if store.Principal(claims.Principal) == store.AdminPrincipal {
		return Identity{}, infraerrors.InvalidToken(nil).WithDetails("reason", "principal may not be the admin sentinel")
	}
	if claims.Issuer != r.issuer {
		return Identity{}, infraerrors.InvalidToken(nil).WithDetails("reason", "invalid issuer")
	}

	roles := make([]Role, 0, len(claims.Roles))
	hasUser := false
	for _, raw := range claims.Roles {
		role := Role(raw)
		if role == RoleUser {
			hasUser = true
		}
		roles = append(roles, role)
	}
	if !hasUser {
		roles = append(roles, RoleUser)
	}

	id := Identity{Principal: store.Principal(claims.Principal), Roles: roles}

	ttl := resolverCacheTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		r.cache.Set(tokenString, id, ttl)
	}

	return id, nil
}
