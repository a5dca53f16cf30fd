package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/application"
	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/response"
)

type AuthHandler struct {
	Auth     *application.AuthService
	Users    *application.UserService
	Verifier *application.EmailVerifier
	Metrics  *middleware.Metrics
	Cookies  *helpers.Manager
	Logger   *logrus.Logger
	Cfg      *config.Config
}

func NewAuthHandler(auth *application.AuthService, users *application.UserService, verifier *application.EmailVerifier, metrics *middleware.Metrics, logger *logrus.Logger, cfg *config.Config) *AuthHandler {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &AuthHandler{
		Auth:     auth,
		Users:    users,
		Verifier: verifier,
		Metrics:  metrics,
		Cookies:  helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure),
		Logger:   logger,
		Cfg:      cfg,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,strongpwd"`
	Age      *int   `json:"age" binding:"omitempty,min=0,max=150"`
	Role     string `json:"role" binding:"omitempty,role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateProfileRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Email string `json:"email" binding:"required,email"`
	Age   *int   `json:"age" binding:"omitempty,min=0,max=150"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required,max=72"`
	NewPassword     string `json:"newPassword" binding:"required,strongpwd"`
}

type verifyConfirmRequest struct {
	Token string `json:"token" binding:"required"`
}

type sessionResponse struct {
	User         *entity.PublicUser `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken,omitempty"`
}

func expiryMeta(pair application.TokenPair) gin.H {
	return gin.H{"access_expires_at": pair.AccessTokenExpiry, "refresh_expires_at": pair.RefreshTokenExpiry}
}

// Register POST /api/auth/register
// The refresh token only travels in the cookie here.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	ctx := c.Request.Context()

	u, err := h.Auth.Register(ctx, application.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
		Role:     req.Role,
	})
	h.Metrics.ObserveAuth("register", err)
	if err != nil {
		_ = c.Error(err)
		return
	}

	pair, err := h.Auth.IssueTokens(ctx, u.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.Cookies.SetRefresh(c, pair.RefreshToken)
	response.Success(c, http.StatusCreated, sessionResponse{User: u, AccessToken: pair.AccessToken}, "User registered successfully", expiryMeta(pair))
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	ctx := c.Request.Context()

	u, err := h.Auth.Login(ctx, req.Email, req.Password)
	h.Metrics.ObserveAuth("login", err)
	if err != nil {
		_ = c.Error(err)
		return
	}

	pair, err := h.Auth.IssueTokens(ctx, u.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.Cookies.SetRefresh(c, pair.RefreshToken)
	h.Logger.WithField("user_id", u.ID).Info("user logged in")
	response.Success(c, http.StatusOK, sessionResponse{User: u, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, "Login successful", expiryMeta(pair))
}

// presentedRefresh prefers the cookie and falls back to a JSON body.
func (h *AuthHandler) presentedRefresh(c *gin.Context) string {
	if tok := h.Cookies.Refresh(c); tok != "" {
		return tok
	}
	if c.Request.ContentLength == 0 {
		return ""
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// Refresh POST /api/auth/refresh
// Issues a new access token. The refresh token is not rotated.
func (h *AuthHandler) Refresh(c *gin.Context) {
	tok := h.presentedRefresh(c)
	if tok == "" {
		_ = c.Error(fmt.Errorf("%w, refresh token not provided", application.ErrUnauthorized))
		return
	}

	access, exp, u, err := h.Auth.RefreshAccessToken(c.Request.Context(), tok)
	h.Metrics.ObserveAuth("refresh", err)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, sessionResponse{User: u, AccessToken: access}, "Token refreshed successfully", gin.H{"access_expires_at": exp})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if tok := h.presentedRefresh(c); tok != "" {
		err := h.Auth.RevokeRefreshToken(c.Request.Context(), tok)
		h.Metrics.ObserveAuth("logout", err)
		if err != nil {
			_ = c.Error(err)
			return
		}
	}
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, nil, "Logout successful", nil)
}

// GetProfile GET /api/auth/profile
func (h *AuthHandler) GetProfile(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(application.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, u, "profile", nil)
}

// UpdateProfile PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	u, err := h.Users.UpdateProfile(c.Request.Context(), uid, &req.Name, &req.Email, req.Age)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, u, "Profile updated successfully", nil)
}

// ChangePassword PUT /api/auth/change-password
// Every refresh token of the user is revoked, so the cookie goes too.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	err := h.Auth.ChangePassword(c.Request.Context(), uid, req.CurrentPassword, req.NewPassword)
	h.Metrics.ObserveAuth("change_password", err)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, nil, "Password changed successfully. Please login again.", nil)
}

// VerifyInit POST /api/auth/verify/init
// The link is echoed back only in development; elsewhere it is delivered by email.
func (h *AuthHandler) VerifyInit(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	res, err := h.Verifier.Init(c.Request.Context(), uid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if res.AlreadyVerified {
		response.Success(c, http.StatusOK, gin.H{"already_verified": true}, "already verified", nil)
		return
	}
	data := gin.H{"already_verified": false, "expires_at": res.ExpiresAt}
	if h.Cfg.IsDevelopment() {
		data["verify_link"] = res.Link
	}
	response.Success(c, http.StatusOK, data, "verification link issued", nil)
}

// VerifyConfirm POST /api/auth/verify/confirm {token}
func (h *AuthHandler) VerifyConfirm(c *gin.Context) {
	var req verifyConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	if err := h.Verifier.Confirm(c.Request.Context(), req.Token); err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verified": true}, "email verified", nil)
}
