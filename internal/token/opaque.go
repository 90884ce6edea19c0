package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// 乱数源が使えない（fatal。疑似乱数への退避はしない）
var ErrInsufficientEntropy = errors.New("insufficient entropy")

// refresh token秘密値のデフォルト長（hex文字数）
const DefaultOpaqueLength = 64

// lengthのhex文字列をcrypto/randから生成する
func GenerateOpaque(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("opaque length must be positive: %d", length)
	}

	// hex1文字=4bit。奇数長に備えて1byte多めに読んで切り詰める
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", ErrInsufficientEntropy
	}

	return hex.EncodeToString(buf)[:length], nil
}
