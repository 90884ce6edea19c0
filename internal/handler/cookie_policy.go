package handler

import (
	"net/http"

	"app/internal/config"
)

// refresh cookieに付ける属性一式
type CookieAttributes struct {
	Path     string
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// 環境ごとのcookie属性を返す約束
type CookiePolicy interface {
	Attributes() CookieAttributes
}

type envCookiePolicy struct {
	attrs CookieAttributes
}

// configのGoEnvから起動時に一度だけ属性を解決する実装。
// リクエストごとの環境推測はしない
func NewEnvCookiePolicy(cfg config.Config) CookiePolicy {
	attrs := CookieAttributes{
		Path:     "/",
		HttpOnly: true,
	}

	switch cfg.GoEnv {
	case config.EnvProduction:
		attrs.Secure = true
		attrs.SameSite = http.SameSiteStrictMode
		attrs.Domain = cfg.APIDomain
	case config.EnvStaging:
		// フロントと別ドメインで動かす前提なのでNone+Secure
		attrs.Secure = true
		attrs.SameSite = http.SameSiteNoneMode
		attrs.Domain = cfg.APIDomain
	default:
		// development: localhostはSecure不可
		attrs.Secure = false
		attrs.SameSite = http.SameSiteLaxMode
	}

	return &envCookiePolicy{attrs: attrs}
}

func (p *envCookiePolicy) Attributes() CookieAttributes {
	return p.attrs
}
