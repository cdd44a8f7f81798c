package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/mythicalltd/featherpanel/internal/middleware"
	"github.com/mythicalltd/featherpanel/internal/models"
)

// AuthHandler handles panel sessions: login, logout, the current-user
// endpoint and TOTP two-factor management.
type AuthHandler struct {
	deps *Deps
	auth *middleware.Auth
}

func NewAuthHandler(deps *Deps, auth *middleware.Auth) *AuthHandler {
	return &AuthHandler{deps: deps, auth: auth}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type twoFARequest struct {
	Code string `json:"code"`
}

// Login verifies credentials (and the TOTP code when 2FA is enabled)
// and returns a session token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}

	var user models.User
	if err := h.deps.DB.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error; err != nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Invalid username or password")
	}
	if !user.IsActive {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Account is disabled")
	}

	if user.TwoFAEnabled {
		if req.Code == "" {
			return c.JSON(fiber.Map{
				"success":      true,
				"requires_2fa": true,
			})
		}
		if !totp.Validate(req.Code, user.TwoFASecret) {
			return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Invalid two-factor code")
		}
	}

	token, err := h.auth.GenerateToken(&user)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to generate token")
	}

	h.deps.DB.Model(&user).Update("last_ip", c.IP())

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token": token,
			"user": fiber.Map{
				"uuid":     user.UUID,
				"username": user.Username,
				"email":    user.Email,
				"is_admin": user.IsAdmin,
			},
		},
	})
}

// Logout revokes the current session token.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	if token != "" {
		ttl := time.Duration(h.deps.Cfg.JWTExpireHours) * time.Hour
		if err := h.auth.BlacklistToken(token, ttl); err != nil {
			return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to revoke token")
		}
	}
	return c.JSON(fiber.Map{"success": true, "message": "Logged out"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Not authenticated")
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}

// Setup2FA generates a new TOTP secret for the user. The secret is not
// active until Verify2FA confirms a valid code.
func (h *AuthHandler) Setup2FA(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Not authenticated")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "FeatherPanel",
		AccountName: user.Email,
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to generate 2FA secret")
	}

	if err := h.deps.DB.Model(user).Update("twofa_secret", key.Secret()).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to store 2FA secret")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"secret": key.Secret(),
			"url":    key.URL(),
		},
	})
}

// Verify2FA confirms the setup code and enables 2FA for the account.
func (h *AuthHandler) Verify2FA(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Not authenticated")
	}

	var req twoFARequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if user.TwoFASecret == "" {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "2FA setup has not been started")
	}
	if !totp.Validate(req.Code, user.TwoFASecret) {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid two-factor code")
	}

	if err := h.deps.DB.Model(user).Update("twofa_enabled", true).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to enable 2FA")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Two-factor authentication enabled"})
}

// Disable2FA turns 2FA off after verifying a current code.
func (h *AuthHandler) Disable2FA(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Not authenticated")
	}

	var req twoFARequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if !user.TwoFAEnabled {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "2FA is not enabled")
	}
	if !totp.Validate(req.Code, user.TwoFASecret) {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid two-factor code")
	}

	updates := map[string]interface{}{"twofa_enabled": false, "twofa_secret": ""}
	if err := h.deps.DB.Model(user).Updates(updates).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to disable 2FA")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Two-factor authentication disabled"})
}
