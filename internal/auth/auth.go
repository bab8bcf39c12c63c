package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const TenantContextKey ContextKey = "tenant"

// TenantHeader carries the tenant id when authentication is disabled.
const TenantHeader = "X-Tenant-ID"

const DefaultTokenTTL = 24 * time.Hour

var (
	ErrNotInitialized = errors.New("auth not initialized")
	ErrNoTenant       = errors.New("token has no tenant")
	ErrInvalidTenant  = errors.New("invalid tenant id")
)

// Tenant is the authenticated caller.
type Tenant struct {
	ID      string `json:"tenant_id"`
	Subject string `json:"sub,omitempty"`
}

type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

var (
	authConfig *AuthConfig
)

type AuthConfig struct {
	JwtSecret []byte
	Issuer    string
	TokenTTL  time.Duration
	Enabled   bool
}

// InitializeAuth sets up the auth configuration
func InitializeAuth(jwtSecret, issuer string, ttl time.Duration, enabled bool) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	authConfig = &AuthConfig{
		JwtSecret: []byte(jwtSecret),
		Issuer:    issuer,
		TokenTTL:  ttl,
		Enabled:   enabled,
	}
}

// IsAuthEnabled returns whether authentication is enabled
func IsAuthEnabled() bool {
	if authConfig == nil {
		return false
	}
	return authConfig.Enabled
}

var tenantID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidTenantID reports whether id is usable as a tenant key.
func ValidTenantID(id string) bool { return tenantID.MatchString(id) }

// GenerateJWT issues a token binding subject to tenant.
func GenerateJWT(tenant, subject string) (string, error) {
	if authConfig == nil {
		return "", ErrNotInitialized
	}
	if !ValidTenantID(tenant) {
		return "", ErrInvalidTenant
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    authConfig.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(authConfig.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(authConfig.JwtSecret)
}

// ValidateJWT validates and parses a JWT token
func ValidateJWT(tokenString string) (*Tenant, error) {
	if authConfig == nil {
		return nil, ErrNotInitialized
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if authConfig.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(authConfig.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return authConfig.JwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !ValidTenantID(claims.TenantID) {
		return nil, ErrNoTenant
	}
	return &Tenant{ID: claims.TenantID, Subject: claims.Subject}, nil
}

// TenantMiddleware resolves the tenant for each request. With auth enabled
// it requires a valid bearer token (or auth_token cookie); otherwise the
// tenant comes from the X-Tenant-ID header. Requests without a tenant pass
// through when required is false.
func TenantMiddleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tenant *Tenant
			if IsAuthEnabled() {
				tokenString := bearer(r)
				if tokenString == "" {
					if required {
						http.Error(w, "Authentication required", http.StatusUnauthorized)
						return
					}
					next.ServeHTTP(w, r)
					return
				}
				t, err := ValidateJWT(tokenString)
				if err != nil {
					http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
					return
				}
				tenant = t
			} else if id := strings.TrimSpace(r.Header.Get(TenantHeader)); id != "" {
				if !ValidTenantID(id) {
					http.Error(w, "Invalid tenant id", http.StatusBadRequest)
					return
				}
				tenant = &Tenant{ID: id}
			}

			if tenant == nil {
				if required {
					http.Error(w, "Tenant required", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), TenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// GetTenantFromContext extracts the tenant from request context
func GetTenantFromContext(ctx context.Context) *Tenant {
	if t, ok := ctx.Value(TenantContextKey).(*Tenant); ok {
		return t
	}
	return nil
}

// TenantID returns the request's tenant id, or "".
func TenantID(r *http.Request) string {
	if t := GetTenantFromContext(r.Context()); t != nil {
		return t.ID
	}
	return ""
}
