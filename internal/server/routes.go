package server

import (
	"app/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, authH *handler.AuthHandler, authMW echo.MiddlewareFunc) {
	e.POST("/register", authH.Register)
	e.POST("/token", authH.Token)
	e.POST("/refresh", authH.Refresh)
	e.POST("/logout", authH.Logout)

	//bearer必須
	e.GET("/verify", authH.Verify, authMW)
	e.GET("/sessions", authH.Sessions, authMW)
	e.DELETE("/sessions/:id", authH.RevokeSession, authMW)
}
