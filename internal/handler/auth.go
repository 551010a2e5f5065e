package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/config"
	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/queue"
	"github.com/dmarves/toolshare/internal/repository"
	"github.com/dmarves/toolshare/internal/service"
	"github.com/dmarves/toolshare/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints. All stores are
// interfaces so tests can substitute fakes.
type AuthHandler struct {
	Cfg       config.Config
	Users     repository.UserStore
	Tokens    repository.TokenStore
	Codes     repository.TwoFactorStore
	Publisher service.CodePublisher
	Audit     *service.AuditRecorder
}

func NewAuthHandler(cfg config.Config, users repository.UserStore, tokens repository.TokenStore,
	codes repository.TwoFactorStore, pub service.CodePublisher, audit *service.AuditRecorder) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Tokens: tokens, Codes: codes, Publisher: pub, Audit: audit}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type verifyReq struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type twoFactorSetupReq struct {
	NotifyAddress string `json:"notify_address"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// issuePair creates and persists an access/refresh token pair for a user.
func (h *AuthHandler) issuePair(c echo.Context, status int, u model.User) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Username, u.Role.String(), h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "issue refresh failed"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "save refresh failed"})
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

// Register creates a user with the default role and audits the signup.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if len(req.Username) < 3 || len(req.Username) > 50 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "username must be 3-50 characters"})
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "valid email required"})
	}
	if len(req.Password) < 6 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "password must be at least 6 characters"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Username, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return c.JSON(http.StatusConflict, echo.Map{"detail": "username already exists"})
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"detail": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "create user failed"})
	}
	_ = h.Audit.Record(ctx, uid, "register", "user", uid, map[string]any{"username": req.Username})

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load user failed"})
	}
	return h.issuePair(c, http.StatusCreated, u)
}

// Login verifies credentials. When the account has two-factor enabled, a
// numeric code is generated, stored hashed with a short expiry, published
// to the messaging channel, and no tokens are issued yet.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "username/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "query failed"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
	}

	if !u.TwoFactor {
		_ = h.Audit.Record(ctx, u.ID, "login", "user", u.ID, nil)
		return h.issuePair(c, http.StatusOK, u)
	}

	code, err := utils.GenerateCode(h.Cfg.CodeLength)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "issue code failed"})
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(h.Cfg.CodeTTLMin) * time.Minute)
	if err := h.Codes.StoreCode(ctx, u.ID, utils.HashToken(code), exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "save code failed"})
	}
	if err := h.Publisher.PublishCode(ctx, queue.TwoFactorCodeEvent{
		UserID:        u.ID,
		Username:      u.Username,
		NotifyAddress: u.NotifyAddress,
		Code:          code,
		ExpiresAt:     exp.Format(time.RFC3339),
		IssuedAt:      now.Format(time.RFC3339),
	}); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"detail": "code delivery failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"requires_2fa": true, "detail": "verification code sent"})
}

// Verify2FA exchanges a delivered code for the token pair. Codes are
// single use; a second submission of the same code fails.
func (h *AuthHandler) Verify2FA(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "username and code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, req.Username)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid code"})
	}
	if err := h.Codes.ConsumeCode(ctx, u.ID, utils.HashToken(strings.TrimSpace(req.Code))); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid code"})
	}
	_ = h.Audit.Record(ctx, u.ID, "login", "user", u.ID, map[string]any{"two_factor": true})
	return h.issuePair(c, http.StatusOK, u)
}

// Setup2FA enables two-factor verification for the caller and records the
// delivery address on the messaging channel.
func (h *AuthHandler) Setup2FA(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	var req twoFactorSetupReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.NotifyAddress) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "notify_address required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetTwoFactor(ctx, uid, true, strings.TrimSpace(req.NotifyAddress)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "enable 2fa failed"})
	}
	_ = h.Audit.Record(ctx, uid, "2fa_enable", "user", uid, nil)
	return c.JSON(http.StatusOK, echo.Map{"two_factor_enabled": true})
}

// Disable2FA turns two-factor verification off for the caller.
func (h *AuthHandler) Disable2FA(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetTwoFactor(ctx, uid, false, ""); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "disable 2fa failed"})
	}
	_ = h.Audit.Record(ctx, uid, "2fa_disable", "user", uid, nil)
	return c.JSON(http.StatusOK, echo.Map{"two_factor_enabled": false})
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair (rotation).
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "refresh_token required"})
	}
	hash := utils.HashToken(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid refresh"})
	}
	_ = h.Tokens.RevokeByHash(ctx, hash)

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load user failed"})
	}
	return h.issuePair(c, http.StatusOK, u)
}

// Logout revokes a specific refresh token, or every session of the caller
// when called with a bearer token and no body.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashToken(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	if uid, err := getUserID(c); err == nil && uid != 0 {
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"detail": "provide Authorization header or refresh_token"})
}

// Me returns the caller's identity claims.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := getUserID(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  uid,
		"username": callerUsername(c),
		"role":     callerRole(c),
	})
}
