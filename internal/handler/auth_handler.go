package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	RefreshCookieName = "refresh_token"
	CsrfCookieName    = "csrf_token"
)

type AuthHandler struct {
	uc         *usecase.AuthUsecase
	policy     CookiePolicy
	refreshTTL time.Duration // refresh/csrf cookieの有効期限
}

// DIコンストラクタ
func NewAuthHandler(uc *usecase.AuthUsecase, policy CookiePolicy, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		uc:         uc,
		policy:     policy,
		refreshTTL: refreshTTL,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterはPOST /registerのハンドラ
func (h *AuthHandler) Register(c echo.Context) error {
	var req usecase.AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "VALIDATION_ERROR"})
	}

	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

// TokenはPOST /tokenのハンドラ（ログイン）
func (h *AuthHandler) Token(c echo.Context) error {
	var req usecase.AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "VALIDATION_ERROR"})
	}

	//refresh tokenに紐付けるメタデータ
	userAgent := c.Request().UserAgent()
	ip := c.RealIP()

	out, err := h.uc.Login(c.Request().Context(), req, userAgent, ip)
	if err != nil {
		return h.writeError(c, err)
	}

	//cookieはusecaseが全部成功した後にだけ付ける
	h.setRefreshCookie(c, out.RefreshTokenPlain)
	h.setCsrfCookie(c, out.CsrfTokenPlain)

	return c.JSON(http.StatusOK, out.Body)
}

// RefreshはPOST /refreshのハンドラ。入力はcookieのみ
func (h *AuthHandler) Refresh(c echo.Context) error {
	refreshPlain := readCookie(c, RefreshCookieName)

	userAgent := c.Request().UserAgent()
	ip := c.RealIP()

	out, err := h.uc.Refresh(c.Request().Context(), refreshPlain, userAgent, ip)
	if err != nil {
		return h.writeError(c, err)
	}

	//ローテーションされた場合のみcookieを差し替える
	if out.RefreshTokenPlain != "" {
		h.setRefreshCookie(c, out.RefreshTokenPlain)
		h.setCsrfCookie(c, out.CsrfTokenPlain)
	}

	return c.JSON(http.StatusOK, out.Body)
}

// VerifyはGET /verifyのハンドラ。認証はmiddleware側で済んでいる
func (h *AuthHandler) Verify(c echo.Context) error {
	user, ok := c.Get(middleware.CtxUserKey).(usecase.UserDTO)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "INVALID_TOKEN"})
	}

	return c.JSON(http.StatusOK, usecase.AuthVerifyResponse{
		Valid: true,
		User:  user,
	})
}

// LogoutはPOST /logoutのハンドラ。常に200でcookieを消す
func (h *AuthHandler) Logout(c echo.Context) error {
	refreshPlain := readCookie(c, RefreshCookieName)

	out := h.uc.Logout(c.Request().Context(), refreshPlain)

	h.clearCookie(c, RefreshCookieName, true)
	h.clearCookie(c, CsrfCookieName, false)

	return c.JSON(http.StatusOK, out)
}

// SessionsはGET /sessionsのハンドラ（有効なセッション一覧）
func (h *AuthHandler) Sessions(c echo.Context) error {
	userID, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "INVALID_TOKEN"})
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	out, err := h.uc.Sessions(c.Request().Context(), userID, limit)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// RevokeSessionはDELETE /sessions/:idのハンドラ
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	userID, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "INVALID_TOKEN"})
	}

	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "VALIDATION_ERROR"})
	}

	if err := h.uc.RevokeSession(c.Request().Context(), userID, sessionID); err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, usecase.SuccessResponse{Message: "session revoked"})
}

// usecaseのエラーをHTTPステータスと安定したコード文字列へ変換する。
// 内部のエラーはそのままクライアントへ出さない
func (h *AuthHandler) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrValidation),
		errors.Is(err, usecase.ErrMissingCredentials):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "VALIDATION_ERROR"})
	case errors.Is(err, usecase.ErrInvalidCredentials):
		return c.JSON(http.StatusForbidden, errorResponse{Error: "INVALID_CREDENTIALS"})
	case errors.Is(err, usecase.ErrMissingRefreshToken):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "MISSING_REFRESH_TOKEN"})
	case errors.Is(err, usecase.ErrInvalidRefreshToken):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "INVALID_REFRESH_TOKEN"})
	case errors.Is(err, usecase.ErrSecurityIncident):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "REVOKED"})
	case errors.Is(err, usecase.ErrInvalidUser):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "INVALID_USER"})
	case errors.Is(err, usecase.ErrInvalidToken),
		errors.Is(err, usecase.ErrInvalidSubject),
		errors.Is(err, usecase.ErrUnknownUser):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "INVALID_TOKEN"})
	case errors.Is(err, usecase.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "NOT_FOUND"})
	case errors.Is(err, usecase.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: "CONFLICT"})
	case errors.Is(err, usecase.ErrMissingSecret):
		c.Logger().Error("JWT署名シークレットが未設定")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "MISSING_SECRET"})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "INTERNAL"})
	}
}

// refresh tokenをcookieにセット
func (h *AuthHandler) setRefreshCookie(c echo.Context, plainRefresh string) {
	attrs := h.policy.Attributes()

	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    plainRefresh,
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		HttpOnly: attrs.HttpOnly,
		Secure:   attrs.Secure,
		SameSite: attrs.SameSite,
		Expires:  time.Now().Add(h.refreshTTL),
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

// CSRF tokenをcookieにセット（JSから読める必要があるのでHttpOnly=false）
func (h *AuthHandler) setCsrfCookie(c echo.Context, csrfToken string) {
	attrs := h.policy.Attributes()

	c.SetCookie(&http.Cookie{
		Name:     CsrfCookieName,
		Value:    csrfToken,
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		HttpOnly: false,
		Secure:   attrs.Secure,
		SameSite: attrs.SameSite,
		Expires:  time.Now().Add(h.refreshTTL),
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

// Max-Age=0でcookieを削除させる
func (h *AuthHandler) clearCookie(c echo.Context, name string, httpOnly bool) {
	attrs := h.policy.Attributes()

	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		HttpOnly: httpOnly,
		Secure:   attrs.Secure,
		SameSite: attrs.SameSite,
		MaxAge:   -1,
	})
}

func readCookie(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil || ck == nil {
		return ""
	}
	return ck.Value
}
