package e2e

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"app/internal/handler"
	"app/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_RotatesTokenAndCookie(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	access, _, _ := loginUser(t, c)
	oldCookie := c.refreshCookie()
	require.NotEmpty(t, oldCookie)

	res, body := c.postJSON("/refresh", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	newAccess, _ := body["access_token"].(string)
	assert.Len(t, strings.Split(newAccess, "."), 3)
	assert.NotEqual(t, access, newAccess)
	assert.EqualValues(t, 3600, body["expires_in"])

	// cookieはローテーションで差し替わる
	newCookie := c.refreshCookie()
	assert.NotEmpty(t, newCookie)
	assert.NotEqual(t, oldCookie, newCookie)

	// 新しいアクセストークンで認証できる
	res, _ = c.getAuthed("/verify", newAccess)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRefresh_WithoutCookie(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	res, body := c.postJSON("/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "MISSING_REFRESH_TOKEN", body["error"])
}

func TestRefresh_UnknownCookie(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	res, body := c.postWithRawCookie("/refresh", handler.RefreshCookieName, "0123456789abcdef")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", body["error"])
}

// 使用済みcookieの再利用は盗難とみなし、全セッションを失効させる
func TestRefresh_ReuseDetection(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	loginUser(t, c)
	stolen := c.refreshCookie()
	require.NotEmpty(t, stolen)

	// 正規クライアントがローテーション
	res, _ := c.postJSON("/refresh", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	current := c.refreshCookie()
	require.NotEqual(t, stolen, current)

	// 盗まれた旧cookieでの再利用は401 REVOKED
	res, body := c.postWithRawCookie("/refresh", handler.RefreshCookieName, stolen)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "REVOKED", body["error"])

	// 巻き添えで正規の現行cookieも無効化されている
	res, body = c.postWithRawCookie("/refresh", handler.RefreshCookieName, current)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "REVOKED", body["error"])
}

func TestLogout_Flow(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	loginUser(t, c)
	oldCookie := c.refreshCookie()
	require.NotEmpty(t, oldCookie)

	res, body := c.postJSON("/logout", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "logged out", body["message"])

	// cookieは消える
	assert.Empty(t, c.refreshCookie())

	// 失効済みなので旧cookieではもうrefreshできない
	res, body = c.postWithRawCookie("/refresh", handler.RefreshCookieName, oldCookie)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "REVOKED", body["error"])
}

// cookieを持っていなくてもlogoutは常に200
func TestLogout_WithoutCookie(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	res, body := c.postJSON("/logout", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "logged out", body["message"])
}

func TestVerify_ExpiredAccessToken(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	// refresh tokenが生きていてもアクセストークンの期限切れは401
	expired, err := token.NewCodec(e2eSecret).Encode(map[string]interface{}{
		"iss": "app-e2e",
		"sub": "1",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
		"jti": "expired-jti",
	})
	require.NoError(t, err)

	res, body := c.getAuthed("/verify", expired)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["error"])
}

func TestSessions_ListAndRevoke(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	// 同一ユーザーで2セッション張る
	access, username, password := loginUser(t, c)

	c2 := newTestClient(t, ts)
	res, _ := c2.postJSON("/token", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := c.getAuthed("/sessions", access)
	require.Equal(t, http.StatusOK, res.StatusCode)

	items, ok := body["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)

	// 2つ目のセッション（c2側）を落とす
	newest, ok := items[0].(map[string]interface{})
	require.True(t, ok)
	sessionID, ok := newest["id"].(float64)
	require.True(t, ok)

	res, body = c.deleteAuthed("/sessions/"+strconv.FormatInt(int64(sessionID), 10), access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "session revoked", body["message"])

	// 一覧から消える
	res, body = c.getAuthed("/sessions", access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	items, _ = body["items"].([]interface{})
	assert.Len(t, items, 1)

	// 落としたセッションのrefreshは失効済み扱い
	res, body = c2.postJSON("/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "REVOKED", body["error"])
}

func TestSessions_RevokeUnknownID(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	access, _, _ := loginUser(t, c)

	res, body := c.deleteAuthed("/sessions/99999", access)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"])
}
