package middleware

import (
	"errors"
	"net/http"
	"strings"

	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey = "user_id"   // int64
	CtxUserKey   = "auth_user" // usecase.UserDTO
)

// bearerAuth用のJWT検証ミドルウェア。検証本体はusecaseに任せる
// （シークレット未設定は500、その他は401）
func AuthJWT(uc *usecase.AuthUsecase) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("MISSING_TOKEN"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("INVALID_TOKEN"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("MISSING_TOKEN"))
			}

			user, err := uc.Verify(c.Request().Context(), rawToken)
			if err != nil {
				if errors.Is(err, usecase.ErrMissingSecret) {
					c.Logger().Error("JWT署名シークレットが未設定")
					return c.JSON(http.StatusInternalServerError, errorJSON("MISSING_SECRET"))
				}
				return c.JSON(http.StatusUnauthorized, errorJSON("INVALID_TOKEN"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, user.ID)
			c.Set(CtxUserKey, *user)

			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(code string) errorResponse {
	return errorResponse{Error: code}
}
