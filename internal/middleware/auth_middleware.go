package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/ourcourses-backend/internal/models"
	jwtPkg "github.com/sefazor/ourcourses-backend/pkg/jwt"
	"go.uber.org/zap"
)

// TokenValidator verifies bearer tokens issued by the identity service.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwtPkg.Claims, error)
}

func AuthMiddleware(tokens TokenValidator, log *zap.Logger) fiber.Handler {
	log = log.Named("auth")

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required")
		}

		// Check if the header starts with "Bearer "
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			log.Debug("token validation failed", zap.String("path", c.Path()), zap.Error(err))
			return unauthorized(c, "Invalid token")
		}

		c.Locals("userID", claims.UserID)
		c.Locals("userEmail", claims.Email)

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.CodedErrorResponse(models.ErrCodeAuthentication, message))
}
