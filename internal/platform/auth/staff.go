package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/config"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
)

// Staff roles accepted on back-office routes.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

const (
	roleClaim            = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// NewFirebaseVerifier initialises the Admin SDK auth client for the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*firebaseauth.Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: initialise firebase auth client: %w", err)
	}
	return client, nil
}

// StaffIdentity is the authenticated back-office user.
type StaffIdentity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole reports whether the identity holds role.
func (i *StaffIdentity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type staffContextKey struct{}

// StaffFromContext returns the identity stored by RequireStaff.
func StaffFromContext(ctx context.Context) (*StaffIdentity, bool) {
	identity, ok := ctx.Value(staffContextKey{}).(*StaffIdentity)
	return identity, ok && identity != nil
}

// StaffAuthenticator guards routes with Firebase ID tokens carrying a role custom claim.
type StaffAuthenticator struct {
	verifier TokenVerifier
	timeout  time.Duration
}

// NewStaffAuthenticator wraps verifier. A nil verifier rejects every request.
func NewStaffAuthenticator(verifier TokenVerifier) *StaffAuthenticator {
	return &StaffAuthenticator{verifier: verifier, timeout: defaultVerifyTimeout}
}

// RequireStaff admits requests whose token carries one of roles (staff and admin by default).
func (a *StaffAuthenticator) RequireStaff(roles ...string) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		roles = []string{RoleStaff, RoleAdmin}
	}
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[normaliseRole(role)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "staff authentication is not configured", http.StatusUnauthorized))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			decoded, err := a.verifier.VerifyIDToken(verifyCtx, token)
			cancel()
			if err != nil {
				code := "invalid_token"
				if firebaseauth.IsIDTokenExpired(err) {
					code = "token_expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, "firebase id token rejected", http.StatusUnauthorized))
				return
			}

			identity := &StaffIdentity{UID: decoded.UID, Roles: rolesFromClaim(decoded.Claims[roleClaim])}
			if email, ok := decoded.Claims["email"].(string); ok {
				identity.Email = strings.TrimSpace(email)
			}
			permitted := false
			for _, role := range identity.Roles {
				if allowed[role] {
					permitted = true
					break
				}
			}
			if !permitted {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "identity does not have a staff role", http.StatusForbidden))
				return
			}

			ctx = context.WithValue(ctx, staffContextKey{}, identity)
			ctx = requestctx.WithActor(ctx, "staff:"+identity.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rolesFromClaim accepts "admin", ["staff","admin"] or {"staff": true}.
func rolesFromClaim(raw any) []string {
	var out []string
	seen := map[string]bool{}
	add := func(role string) {
		role = normaliseRole(role)
		if role != "" && !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}
	switch v := raw.(type) {
	case string:
		add(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				add(role)
			}
		}
	}
	return out
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
