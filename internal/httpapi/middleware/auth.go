package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gongahkia/batchqueue/internal/observability"
)

// AuthConfig holds the bearer-token configuration for the
// introspection surface.
type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	Skipper       func(*fiber.Ctx) bool
}

// JWTClaims is the claim set minted for introspection API callers.
type JWTClaims struct {
	ClientID string   `json:"client_id"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTAuth validates a Bearer JWT on every request it guards.
func JWTAuth(config *AuthConfig, logger *observability.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if config.Skipper != nil && config.Skipper(c) {
			return c.Next()
		}

		auth := c.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or invalid authorization header",
				"hint":  "provide Authorization: Bearer <token>",
			})
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.ErrUnauthorized
			}
			return []byte(config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			logger.WithFields(map[string]interface{}{
				"path": c.Path(),
			}).Warn("jwt validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token claims",
			})
		}

		c.Locals("client_id", claims.ClientID)
		c.Locals("roles", claims.Roles)
		return c.Next()
	}
}

// RequireRoles rejects a request unless the authenticated caller's
// roles (set by JWTAuth) include at least one of required.
func RequireRoles(required ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("roles").([]string)
		for _, have := range roles {
			for _, want := range required {
				if have == want {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":          "insufficient permissions",
			"required_roles": required,
		})
	}
}

// GenerateJWT mints a bearer token for clientID with the given roles,
// used by batchqueue-admin to issue tokens for the introspection API.
func GenerateJWT(clientID string, roles []string, cfg *AuthConfig) (string, error) {
	claims := &JWTClaims{
		ClientID: clientID,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.JWTExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "batchqueue-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
