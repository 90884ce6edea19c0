package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_EncodeProducesThreeSegments(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Encode(map[string]interface{}{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	assert.Len(t, strings.Split(tok, "."), 3)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := NewCodec("test-secret")

	claims := map[string]interface{}{
		"iss":  "app-test",
		"sub":  "42",
		"exp":  float64(time.Now().Add(time.Hour).Unix()),
		"jti":  "abc-123",
		"role": "USER",
	}

	tok, err := c.Encode(claims)
	require.NoError(t, err)

	got, err := c.Decode(tok)
	require.NoError(t, err)

	// JSON経由なので数値はfloat64で戻る
	for k, v := range claims {
		assert.EqualValues(t, v, got[k], "claim %s", k)
	}
}

func TestCodec_WrongSecretFails(t *testing.T) {
	tok, err := NewCodec("secret-one").Encode(map[string]interface{}{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = NewCodec("secret-two").Decode(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCodec_TamperedPayloadFails(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Encode(map[string]interface{}{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	// payloadだけ別トークンのものに差し替える
	other, err := c.Encode(map[string]interface{}{
		"sub": "999",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	otherParts := strings.Split(other, ".")

	tampered := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = c.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCodec_ExpiredFailsEvenWithCorrectSecret(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Encode(map[string]interface{}{
		"sub": "1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = c.Decode(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCodec_MissingExpNeverExpires(t *testing.T) {
	c := NewCodec("test-secret")

	tok, err := c.Encode(map[string]interface{}{"sub": "1"})
	require.NoError(t, err)

	got, err := c.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, "1", got["sub"])
}

func TestCodec_MalformedToken(t *testing.T) {
	c := NewCodec("test-secret")

	for _, tok := range []string{
		"",
		"abc",
		"a.b",
		"a.b.c.d",
		"not!!base64.not!!base64.not!!base64",
	} {
		_, err := c.Decode(tok)
		assert.ErrorIs(t, err, ErrMalformedToken, "token %q", tok)
	}
}

func TestCodec_RejectsOtherSigningMethods(t *testing.T) {
	// 同じシークレットでもHS256以外は弾く
	raw := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewCodec("test-secret").Decode(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
