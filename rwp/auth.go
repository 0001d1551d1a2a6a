package rwp

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthorized is returned when authentication fails.
var ErrUnauthorized = errors.New("rwp: unauthorized")

// Identity describes an authenticated caller.
type Identity struct {
	// Subject is the caller's identifier (worker ID, service name, user).
	Subject string

	// Scopes the caller is granted. The wildcard "*" grants everything.
	Scopes []string
}

// HasScope reports whether the identity holds the given scope.
func (id *Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

// Authenticator validates tokens and resolves them to identities.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// ── Scopes ──────────────────────────────────────────

const (
	ScopeOfferWrite = "offer:write"
	ScopeJobRead    = "job:read"
	ScopeJobWrite   = "job:write"
	ScopeWorkerRead = "worker:read"
	ScopeStatsRead  = "stats:read"
	ScopeAdmin      = "admin"
)

// RequiredScope returns the scope needed to call a method. Unknown
// methods require admin.
func RequiredScope(method string) string {
	switch method {
	case MethodOfferAccept, MethodOfferDecline:
		return ScopeOfferWrite
	case MethodJobGet:
		return ScopeJobRead
	case MethodJobSubmit, MethodJobCancel, MethodJobComplete, MethodJobClose:
		return ScopeJobWrite
	case MethodWorkerGet:
		return ScopeWorkerRead
	case MethodStats:
		return ScopeStatsRead
	default:
		return ScopeAdmin
	}
}

// ── Authenticators ──────────────────────────────────

// APIKeyEntry binds a static token to an identity.
type APIKeyEntry struct {
	Token    string
	Identity Identity
}

// APIKeyAuthenticator authenticates against a static set of API keys.
type APIKeyAuthenticator struct {
	keys map[string]Identity
}

// NewAPIKeyAuthenticator creates an authenticator from static entries.
func NewAPIKeyAuthenticator(entries ...APIKeyEntry) *APIKeyAuthenticator {
	keys := make(map[string]Identity, len(entries))
	for _, e := range entries {
		keys[e.Token] = e.Identity
	}
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	ident, ok := a.keys[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &ident, nil
}

// NoopAuthenticator accepts every token and grants all scopes. For
// development and tests only.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	subject := token
	if subject == "" {
		subject = "anonymous"
	}
	return &Identity{Subject: subject, Scopes: []string{"*"}}, nil
}

// CompositeAuthenticator tries each authenticator in order and returns
// the first success.
type CompositeAuthenticator struct {
	auths []Authenticator
}

func NewCompositeAuthenticator(auths ...Authenticator) *CompositeAuthenticator {
	return &CompositeAuthenticator{auths: auths}
}

func (c *CompositeAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	for _, a := range c.auths {
		if ident, err := a.Authenticate(ctx, token); err == nil {
			return ident, nil
		}
	}
	return nil, ErrUnauthorized
}
