package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/config"
	"github.com/mythicalltd/featherpanel/internal/models"
)

const blacklistPrefix = "token_blacklist:"

// SessionClaims are the panel session token claims. Separate from the
// short-lived daemon tokens issued by the wings package.
type SessionClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Auth issues and verifies panel session tokens.
type Auth struct {
	cfg *config.Config
	db  *gorm.DB
	rdb *redis.Client
}

func NewAuth(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Auth {
	return &Auth{cfg: cfg, db: db, rdb: rdb}
}

// GenerateToken creates a new session token for a user.
func (a *Auth) GenerateToken(user *models.User) (string, error) {
	claims := SessionClaims{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(a.cfg.JWTExpireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "featherpanel",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

// BlacklistToken revokes a session token until its natural expiry.
func (a *Auth) BlacklistToken(tokenString string, ttl time.Duration) error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Set(context.Background(), blacklistPrefix+tokenString, "1", ttl).Err()
}

func (a *Auth) isBlacklisted(tokenString string) bool {
	if a.rdb == nil {
		return false
	}
	exists, err := a.rdb.Exists(context.Background(), blacklistPrefix+tokenString).Result()
	return err == nil && exists > 0
}

// Required protects routes behind a valid session token.
func (a *Auth) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Missing authorization header",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid authorization header format",
			})
		}

		tokenString := parts[1]

		if a.isBlacklisted(tokenString) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Token has been revoked (logged out)",
			})
		}

		token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid or expired token",
			})
		}

		claims, ok := token.Claims.(*SessionClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid token claims",
			})
		}

		var user models.User
		if err := a.db.First(&user, claims.UserID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "User not found",
			})
		}

		if !user.IsActive {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "User account is disabled",
			})
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		c.Locals("token", tokenString)

		return c.Next()
	}
}

// AdminOnly restricts a route to admin users. Must run after Required.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil || !user.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Admin access required",
			})
		}
		return c.Next()
	}
}

// GetCurrentUser returns the authenticated user from context.
func GetCurrentUser(c *fiber.Ctx) *models.User {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetCurrentUserID returns the authenticated user's ID from context.
func GetCurrentUserID(c *fiber.Ctx) uint {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return 0
	}
	return userID
}
