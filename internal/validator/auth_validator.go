package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"app/internal/usecase"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")

	// refresh tokenが無い・不正
	ErrInvalidRefresh = errors.New("invalid refresh")
)

type authValidator struct{}

// Usecaseはinterfaceを依存注入
func NewAuthValidator() usecase.AuthValidator {
	return &authValidator{}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, username string, password string) error {
	username = strings.TrimSpace(username)

	// 必須チェック
	if username == "" || password == "" {
		return ErrInvalidInput
	}

	if !isUsernameLike(username) {
		return ErrInvalidInput
	}

	// パスワード最低文字数（MVP: 8）
	if len(password) < 8 {
		return ErrInvalidInput
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, username string, password string) error {
	// 必須チェックのみ。形式で弾いて列挙のヒントを与えない
	if strings.TrimSpace(username) == "" || password == "" {
		return ErrInvalidInput
	}

	return nil
}

// refreshの入力を検証
func (v *authValidator) ValidateRefresh(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrInvalidRefresh
	}

	return nil
}

// username形式をチェック（3〜60文字の英数と._-）
func isUsernameLike(s string) bool {
	re := regexp.MustCompile(`^[a-zA-Z0-9._-]{3,60}$`)
	return re.MatchString(s)
}
