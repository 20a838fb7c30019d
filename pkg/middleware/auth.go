package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/contextkeys"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
)

// cachedIdentity is a verified access token
type cachedIdentity struct {
	identity  auth.Identity
	expiresAt time.Time
}

// Authenticator verifies bearer access tokens and puts the caller identity
// in the request context
type Authenticator struct {
	tokens *auth.TokenIssuer
	cache  *lru.Cache[string, cachedIdentity] // nil when disabled
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. cacheSize bounds the number of
// verified tokens kept in memory; 0 disables the cache.
func NewAuthenticator(tokens *auth.TokenIssuer, cacheSize int) (*Authenticator, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	a := &Authenticator{tokens: tokens, now: time.Now}
	if cacheSize > 0 {
		cache, err := lru.New[string, cachedIdentity](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create token cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

// authenticate resolves the bearer token of r
func (a *Authenticator) authenticate(r *http.Request) (auth.Identity, error) {
	token, ok := httputil.BearerToken(r)
	if !ok {
		return auth.Identity{}, apperr.Unauthorized("missing access token")
	}

	if a.cache != nil {
		if hit, ok := a.cache.Get(token); ok {
			if a.now().Before(hit.expiresAt) {
				return hit.identity, nil
			}
			a.cache.Remove(token)
		}
	}

	claims, err := a.tokens.ParseAccessToken(token)
	if err != nil {
		return auth.Identity{}, err
	}
	identity := claims.Identity()
	if a.cache != nil && claims.ExpiresAt != nil {
		a.cache.Add(token, cachedIdentity{identity: identity, expiresAt: claims.ExpiresAt.Time})
	}
	return identity, nil
}

// Required rejects requests without a valid access token
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.authenticate(r)
		if err != nil {
			httputil.WriteUnauthorized(w, apperr.Message(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// Optional lets anonymous requests through. A request that does carry a
// token must carry a valid one.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := a.authenticate(r)
		if err != nil {
			httputil.WriteUnauthorized(w, apperr.Message(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func withIdentity(ctx context.Context, identity auth.Identity) context.Context {
	ctx = contextkeys.WithAuth(ctx, identity)
	return contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
}

// IdentityFrom returns the authenticated caller, if any
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(contextkeys.AuthKey).(auth.Identity)
	return identity, ok
}

// Authorize checks that the caller may perform action. Denials are written
// to the audit log.
func Authorize(ctx context.Context, action auth.Action) error {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	if err := auth.Authorize(identity.Role, action); err != nil {
		recordDenied(ctx, identity, action)
		return err
	}
	return nil
}

// AuthorizeSelfOr lets the caller act on their own account, or on any
// account when the role allows action
func AuthorizeSelfOr(ctx context.Context, userID int64, action auth.Action) error {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	if identity.UserID == userID {
		return nil
	}
	return Authorize(ctx, action)
}

// RequireAction creates middleware that checks the caller's role against
// the policy table
func RequireAction(action auth.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(r.Context(), action); err != nil {
				if apperr.Is(err, apperr.KindUnauthorized) {
					httputil.WriteUnauthorized(w, apperr.Message(err))
					return
				}
				httputil.WriteForbidden(w, apperr.Message(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func recordDenied(ctx context.Context, identity auth.Identity, action auth.Action) {
	_ = audit.FromContext(ctx).Log(ctx, &audit.Event{
		Type:     audit.EventTypeAuthzAccessDenied,
		Status:   audit.EventStatusDenied,
		UserID:   audit.Int64(identity.UserID),
		Username: identity.Username,
		Message:  "access denied",
		Metadata: map[string]interface{}{
			"action": string(action),
			"role":   string(identity.Role),
		},
	})
}
