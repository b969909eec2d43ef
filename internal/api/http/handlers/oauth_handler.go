package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/service"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// OAuthHandler drives the GitHub authorization code flow.
type OAuthHandler struct {
	auth *service.AuthService
}

// NewOAuthHandler constructs handler.
func NewOAuthHandler(authService *service.AuthService) *OAuthHandler {
	return &OAuthHandler{auth: authService}
}

// GitHubStart handles GET /auth/oauth/github/start by redirecting to the
// consent page with a fresh state value.
func (h *OAuthHandler) GitHubStart(c *fiber.Ctx) error {
	state := uuid.NewString()
	url, err := h.auth.GitHubAuthURL(state)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/oauth",
		Expires:  time.Now().Add(oauthStateTTL),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   c.Protocol() == "https",
	})
	return c.Redirect(url, http.StatusFound)
}

// GitHubCallback handles GET /auth/oauth/github/callback.
func (h *OAuthHandler) GitHubCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" || state != c.Cookies(oauthStateCookie) {
		return apperrors.NewUnauthorized("oauth state mismatch")
	}
	c.ClearCookie(oauthStateCookie)

	result, err := h.auth.LoginWithGitHub(c.UserContext(), c.Query("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponse(result.User, result.Token)})
}
