package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// RoleAdmin passes every role check.
const RoleAdmin = "administrador"

// DevUserID is the identity assumed by DevAuthMiddleware when a request
// carries neither a token nor an X-Dev-User header.
const DevUserID = "00000000-0000-0000-0000-000000000001"

// Claims is the payload of the bearer tokens issued by the clinic's login
// service. Older tokens carry a single "rol" instead of "roles".
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
	Rol   string   `json:"rol,omitempty"`
}

// AllRoles merges Roles and Rol.
func (c *Claims) AllRoles() []string {
	if c.Rol == "" {
		return c.Roles
	}
	for _, r := range c.Roles {
		if r == c.Rol {
			return c.Roles
		}
	}
	return append(append([]string{}, c.Roles...), c.Rol)
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	// Skipper bypasses authentication for public paths. Defaults to AuthSkipper.
	Skipper func(echo.Context) bool
}

func (cfg JWTConfig) skip(c echo.Context) bool {
	if cfg.Skipper != nil {
		return cfg.Skipper(c)
	}
	return AuthSkipper(c)
}

// extractToken reads the bearer token from the Authorization header. Browsers
// cannot set headers on a WebSocket upgrade, so ?token= is accepted too.
func extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if tok := c.QueryParam("token"); tok != "" {
			return tok, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Token de autenticación requerido")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Formato de autorización inválido")
	}
	return strings.TrimSpace(parts[1]), nil
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	return claims, nil
}

// JWTMiddleware verifies the bearer token and stores the caller's identity
// on both the echo context and the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.skip(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token inválido o expirado").SetInternal(err)
			}

			setIdentity(c, claims.Subject, claims.AllRoles())
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// with a token are verified as usual; requests without one act as the user in
// X-Dev-User with the role in X-Dev-Role, defaulting to an administrator.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	verify := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := verify(next)
		return func(c echo.Context) error {
			if cfg.skip(c) {
				return next(c)
			}
			if c.Request().Header.Get("Authorization") != "" || c.QueryParam("token") != "" {
				return verified(c)
			}

			uid := c.Request().Header.Get("X-Dev-User")
			if uid == "" {
				uid = DevUserID
			}
			role := c.Request().Header.Get("X-Dev-Role")
			if role == "" {
				role = RoleAdmin
			}
			setIdentity(c, uid, []string{role})
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, userID string, roles []string) {
	c.Set("user_id", userID)
	ctx := c.Request().Context()
	ctx = WithIdentity(ctx, userID, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

// WithIdentity returns a context carrying the caller's id and roles.
func WithIdentity(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// HasRole reports whether the caller holds role. Administrators hold every role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}
