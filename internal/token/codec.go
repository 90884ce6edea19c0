package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// 3分割形式でない・base64が壊れている等
	ErrMalformedToken = errors.New("malformed token")
	// 署名不一致（アルゴリズム不一致を含む）
	ErrInvalidSignature = errors.New("invalid signature")
	// exp超過
	ErrExpiredToken = errors.New("expired token")
)

// HS256専用の署名付きトークンcodec。状態を持たない
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// claimsを署名して `<header>.<payload>.<signature>` を返す
func (c *Codec) Encode(claims map[string]interface{}) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	return t.SignedString(c.secret)
}

// 署名とexpを検証してclaimsを返す。expが無いclaimsは期限なし扱い
// （アクセストークンには発行側が必ずexpを入れる約束）
func (c *Codec) Decode(tokenString string) (map[string]interface{}, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		// HS256以外は受け付けない（alg none等の差し替え対策）
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}

	return map[string]interface{}(claims), nil
}

// jwtライブラリのエラーを自前のエラー種別へ寄せる
func classifyParseError(err error) error {
	var ve *jwt.ValidationError
	if !errors.As(err, &ve) {
		return ErrMalformedToken
	}

	switch {
	case ve.Errors&jwt.ValidationErrorMalformed != 0:
		return ErrMalformedToken
	case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
		return ErrInvalidSignature
	case ve.Errors&jwt.ValidationErrorExpired != 0:
		return ErrExpiredToken
	case ve.Inner != nil && errors.Is(ve.Inner, ErrInvalidSignature):
		// keyfuncでアルゴリズム不一致を弾いたケース
		return ErrInvalidSignature
	default:
		return ErrMalformedToken
	}
}
