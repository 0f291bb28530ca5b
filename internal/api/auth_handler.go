package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/auth"
	"talentCorner/internal/config"
	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
	"talentCorner/internal/mailer"
	"talentCorner/internal/notify"
)

const refreshTokenCookieName = "refresh_token"

var (
	errRateLimited   = errcode.New(errcode.RateLimited, "rate limit exceeded")
	errAccountLocked = errcode.New(errcode.RateLimited, "account temporarily locked")
	errConfirmation  = errcode.NewValidation("Password confirmation does not match.")
	errOTPLocked     = errcode.New(errcode.RateLimited, "too many invalid codes, request a new one")
)

// MailSender delivers one message with the dispatcher's retry policy.
type MailSender interface {
	SendWithRetry(ctx context.Context, msg mailer.Message) error
}

// AuthHandler 处理机构账号的注册、登录、验证码与令牌生命周期。
type AuthHandler struct {
	accounts     *auth.Accounts
	authService  *auth.AuthService
	limiter      Limiter
	revocations  RevocationList
	renderer     *notify.Renderer
	mail         MailSender
	cfg          config.AuthConfig
	cookieDomain string
}

func NewAuthHandler(
	accounts *auth.Accounts,
	authService *auth.AuthService,
	limiter Limiter,
	revocations RevocationList,
	renderer *notify.Renderer,
	mail MailSender,
	cfg config.AuthConfig,
	cookieDomain string,
) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		authService:  authService,
		limiter:      limiter,
		revocations:  revocations,
		renderer:     renderer,
		mail:         mail,
		cfg:          cfg,
		cookieDomain: cookieDomain,
	}
}

type signupRequest struct {
	Email        string `json:"email" binding:"required,notblank,email"`
	Password     string `json:"password" binding:"required,notblank,max=72"`
	Organization string `json:"organization" binding:"required,notblank"`
}

// Signup 创建机构账号并发送注册验证码。
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	acct, code, err := h.accounts.Signup(ctx, req.Email, req.Organization, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.sendOTP(ctx, database.OTPPurposeSignup, acct.Email, code); err != nil {
		respondError(c, err)
		return
	}

	middleware.LoggerFromContext(c).Info("account signed up", slog.Uint64("org_id", uint64(acct.ID)))
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User signed up successfully. OTP sent to email."})
}

type signinRequest struct {
	Email        string `json:"email" binding:"required,notblank"`
	Password     string `json:"password" binding:"required"`
	Organization string `json:"organization" binding:"required,notblank"`
}

type tokenResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	Org                string `json:"org"`
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Signin 校验口令并返回 Token。
func (h *AuthHandler) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)
	identity := loginIdentity(req.Email, req.Organization)
	if err := h.checkLoginThrottle(c, identity); err != nil {
		respondError(c, err)
		return
	}

	acct, err := h.accounts.Authenticate(ctx, req.Email, req.Organization, req.Password)
	if err != nil {
		if errcode.CodeOf(err) == errcode.Unauthorized {
			h.recordLoginFailure(ctx, logger, identity)
		}
		respondError(c, err)
		return
	}

	_ = h.limiter.Reset(ctx, "lock:login:fail:"+identity)
	h.replyWithTokens(c, acct, "Sign in successful.")
}

func loginIdentity(email, organization string) string {
	return auth.NormalizeEmail(email) + ":" + auth.OrganizationKey(organization)
}

// checkLoginThrottle 对所有校验口令的入口生效：每 IP+账号 每小时 N 次，以及失败锁定。
func (h *AuthHandler) checkLoginThrottle(c *gin.Context, identity string) error {
	ctx := c.Request.Context()
	rateKey := "rate:login:" + c.ClientIP() + ":" + identity + ":" + time.Now().UTC().Format("2006010215")
	count, err := h.limiter.Hit(ctx, rateKey, time.Hour)
	if err != nil {
		middleware.LoggerFromContext(c).Warn("login rate counter unavailable", slog.Any("error", err))
		count = 0
	}
	if h.cfg.LoginRateLimitPerHour > 0 && count > int64(h.cfg.LoginRateLimitPerHour) {
		return errRateLimited
	}
	if locked, _ := h.limiter.Locked(ctx, "lock:login:"+identity); locked {
		return errAccountLocked
	}
	return nil
}

func (h *AuthHandler) recordLoginFailure(ctx context.Context, logger *slog.Logger, identity string) {
	if h.cfg.LoginLockThreshold <= 0 {
		return
	}
	failures, err := h.limiter.Hit(ctx, "lock:login:fail:"+identity, h.cfg.LoginLockTTL)
	if err != nil {
		logger.Warn("login failure counter unavailable", slog.Any("error", err))
		return
	}
	if failures >= int64(h.cfg.LoginLockThreshold) {
		_ = h.limiter.Lock(ctx, "lock:login:"+identity, h.cfg.LoginLockTTL)
		logger.Warn("account locked after repeated failures")
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌随即失效。
func (h *AuthHandler) Refresh(c *gin.Context) {
	claims, ok := h.refreshClaims(c)
	if !ok {
		unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	acct, err := h.accounts.ByID(ctx, claims.OrgID)
	if err != nil {
		unauthorized(c)
		return
	}
	if err := h.revoke(ctx, claims); err != nil {
		respondError(c, errcode.Wrap(errcode.SystemError, "revoke refresh token", err))
		return
	}
	h.replyWithTokens(c, acct, "Token refreshed.")
}

// Logout 将刷新令牌加入黑名单，防止继续使用。
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := h.refreshClaims(c)
	if !ok {
		unauthorized(c)
		return
	}
	if err := h.revoke(c.Request.Context(), claims); err != nil {
		respondError(c, errcode.Wrap(errcode.SystemError, "revoke refresh token", err))
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type resetOTPRequest struct {
	Email        string `json:"email" binding:"required,notblank"`
	Organization string `json:"organization" binding:"required,notblank"`
}

// ResetOTP 发送重置密码验证码；验证码只通过邮件送达。
func (h *AuthHandler) ResetOTP(c *gin.Context) {
	var req resetOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	if h.cfg.OTPRequestsPerHour > 0 {
		key := "rate:otp:" + auth.NormalizeEmail(req.Email) + ":" + auth.OrganizationKey(req.Organization)
		count, err := h.limiter.Hit(ctx, key, time.Hour)
		if err == nil && count > int64(h.cfg.OTPRequestsPerHour) {
			respondError(c, errRateLimited)
			return
		}
	}

	acct, code, err := h.accounts.RequestReset(ctx, req.Email, req.Organization)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.sendOTP(ctx, database.OTPPurposeReset, acct.Email, code); err != nil {
		respondError(c, err)
		return
	}
	h.clearOTPFailures(ctx, acct.Email)
	ok(c, "OTP sent to email.")
}

type verifyOTPRequest struct {
	Email        string `json:"email" binding:"required,notblank"`
	OTP          string `json:"otp" binding:"required,notblank"`
	Organization string `json:"organization"`
}

func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	ctx := c.Request.Context()
	if err := h.checkOTPThrottle(ctx, req.Email); err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.accounts.VerifyOTP(ctx, req.Email, req.Organization, req.OTP); err != nil {
		respondError(c, h.otpFailure(c, req.Email, err))
		return
	}
	ok(c, "OTP verified successfully.")
}

type resetPasswordRequest struct {
	Email        string `json:"email" binding:"required,notblank"`
	OTP          string `json:"otp" binding:"required,notblank"`
	NewPassword  string `json:"newPassword" binding:"required,notblank,max=72"`
	Organization string `json:"organization"`
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	ctx := c.Request.Context()
	if err := h.checkOTPThrottle(ctx, req.Email); err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.accounts.ResetPassword(ctx, req.Email, req.Organization, req.OTP, req.NewPassword); err != nil {
		respondError(c, h.otpFailure(c, req.Email, err))
		return
	}
	h.clearOTPFailures(ctx, req.Email)
	ok(c, "Password reset successfully.")
}

// 验证码错误次数按邮箱计数，与机构无关，带不带 organization 都算同一个额度。
func otpFailureKey(email string) string { return "rate:otp-verify:" + auth.NormalizeEmail(email) }
func otpLockKey(email string) string { return "lock:otp-verify:" + auth.NormalizeEmail(email) }

func (h *AuthHandler) checkOTPThrottle(ctx context.Context, email string) error {
	if h.cfg.OTPVerifyAttempts <= 0 {
		return nil
	}
	if locked, _ := h.limiter.Locked(ctx, otpLockKey(email)); locked {
		return errOTPLocked
	}
	return nil
}

// otpFailure counts a wrong code. Reaching the limit discards the outstanding codes of that
// email, so a new one has to be requested through reset-otp.
func (h *AuthHandler) otpFailure(c *gin.Context, email string, err error) error {
	if h.cfg.OTPVerifyAttempts <= 0 || !errors.Is(err, auth.ErrInvalidOTP) {
		return err
	}
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)
	failures, hitErr := h.limiter.Hit(ctx, otpFailureKey(email), h.accounts.OTPTTL())
	if hitErr != nil {
		logger.Warn("otp failure counter unavailable", slog.Any("error", hitErr))
		return err
	}
	if failures < int64(h.cfg.OTPVerifyAttempts) {
		return err
	}
	if discardErr := h.accounts.DiscardOTP(context.WithoutCancel(ctx), email, ""); discardErr != nil {
		logger.Error("discard otp failed", slog.Any("error", discardErr))
	}
	_ = h.limiter.Lock(ctx, otpLockKey(email), h.accounts.OTPTTL())
	_ = h.limiter.Reset(ctx, otpFailureKey(email))
	logger.Warn("otp discarded after repeated failures")
	return errOTPLocked
}

func (h *AuthHandler) clearOTPFailures(ctx context.Context, email string) {
	_ = h.limiter.Reset(ctx, otpFailureKey(email))
	_ = h.limiter.Reset(ctx, otpLockKey(email))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,notblank,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ChangePassword 校验当前密码并更新为新密码，旧刷新令牌作废。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		respondError(c, errConfirmation)
		return
	}

	principal, found := middleware.PrincipalOf(c)
	if !found {
		unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	acct, err := h.accounts.ChangePassword(ctx, principal.OrgID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondError(c, err)
		return
	}

	if refreshToken, err := c.Cookie(refreshTokenCookieName); err == nil && refreshToken != "" {
		if claims, err := h.authService.ValidateToken(refreshToken); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.revoke(ctx, claims); err != nil {
				respondError(c, errcode.Wrap(errcode.SystemError, "revoke refresh token", err))
				return
			}
		}
	}

	h.replyWithTokens(c, acct, "Password changed successfully.")
}

type verifyCredentialsRequest struct {
	OrgEmail string `json:"orgEmail" binding:"required,notblank"`
	OrgName  string `json:"orgName" binding:"required,notblank"`
	Password string `json:"password" binding:"required,notblank"`
}

// VerifyCredentials 仅校验凭据，不颁发令牌。
func (h *AuthHandler) VerifyCredentials(c *gin.Context) {
	var req verifyCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	ctx := c.Request.Context()
	identity := loginIdentity(req.OrgEmail, req.OrgName)
	if err := h.checkLoginThrottle(c, identity); err != nil {
		respondError(c, err)
		return
	}

	_, err := h.accounts.Authenticate(ctx, req.OrgEmail, req.OrgName, strings.TrimSpace(req.Password))
	if err != nil {
		if errcode.CodeOf(err) == errcode.Unauthorized {
			h.recordLoginFailure(ctx, middleware.LoggerFromContext(c), identity)
			rejectOK(c, "Invalid email, organization name or password.")
			return
		}
		respondError(c, err)
		return
	}
	_ = h.limiter.Reset(ctx, "lock:login:fail:"+identity)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) sendOTP(ctx context.Context, purpose, to, code string) error {
	msg, err := h.renderer.OTP(purpose, to, code, h.accounts.OTPTTL())
	if err != nil {
		return errcode.Wrap(errcode.SystemError, "render otp", err)
	}
	return h.mail.SendWithRetry(ctx, msg)
}

func (h *AuthHandler) refreshClaims(c *gin.Context) (*auth.TokenClaims, bool) {
	token := extractRefreshToken(c)
	if token == "" {
		return nil, false
	}
	logger := middleware.LoggerFromContext(c)

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		logger.Info("refresh token invalid", slog.Any("error", err))
		return nil, false
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		logger.Info("refresh token wrong type", slog.String("token_type", claims.TokenType))
		return nil, false
	}
	revoked, err := h.revocations.Revoked(c.Request.Context(), claims.ID)
	if err != nil {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		return nil, false
	}
	if revoked {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) revoke(ctx context.Context, claims *auth.TokenClaims) error {
	return h.revocations.Revoke(ctx, claims.ID, ttlUntil(claims.ExpiresAt, h.authService.RefreshTokenTTL()))
}

func ttlUntil(expiresAt *jwt.NumericDate, fallback time.Duration) time.Duration {
	if expiresAt == nil {
		return fallback
	}
	if ttl := time.Until(expiresAt.Time); ttl > 0 {
		return ttl
	}
	return time.Second
}

func (h *AuthHandler) replyWithTokens(c *gin.Context, acct *database.OrgAccount, msg string) {
	pair, err := h.authService.GenerateTokenPair(auth.PrincipalOf(acct))
	if err != nil {
		respondError(c, errcode.Wrap(errcode.SystemError, "generate token pair", err))
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		Success:            true,
		Message:            msg,
		Org:                acct.Organization,
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: acct.MustChangePassword,
	})
}

func extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	ttl := h.authService.RefreshTokenTTL()
	if ttl <= 0 {
		ttl = time.Hour
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   int(ttl.Seconds()),
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
		Expires:  time.Now().Add(ttl),
	})
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}
