package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/handler"
	infraRepo "app/internal/infra/repository"
	"app/internal/middleware"
	"app/internal/server"
	"app/internal/usecase"
	"app/internal/validator"

	"github.com/stretchr/testify/require"
)

const e2eSecret = "e2e-test-secret"

var userSeq int64

// アプリ全体をインメモリ実装で組み立てて起動する
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Config{
		Port:            "8080",
		JWTSecret:       e2eSecret,
		TokenIssuer:     "app-e2e",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		RefreshRotation: true,
		GoEnv:           config.EnvDevelopment,
		APIDomain:       "localhost",
		FEURL:           "http://localhost:3000",
	}

	userRepo := infraRepo.NewUserMemoryRepository()
	rtRepo := infraRepo.NewRefreshTokenMemoryRepository([]byte(cfg.JWTSecret))

	authUC := usecase.NewAuthUsecase(cfg, userRepo, rtRepo, validator.NewAuthValidator())

	policy := handler.NewEnvCookiePolicy(cfg)
	authH := handler.NewAuthHandler(authUC, policy, cfg.RefreshTokenTTL)

	e := server.New(cfg, authH, middleware.AuthJWT(authUC))
	e.Logger.SetOutput(io.Discard)

	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return ts
}

// cookie込みでリクエストを回すテスト用クライアント
type TestClient struct {
	t       *testing.T
	ts      *httptest.Server
	httpCli *http.Client
}

func newTestClient(t *testing.T, ts *httptest.Server) *TestClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &TestClient{
		t:  t,
		ts: ts,
		httpCli: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
		},
	}
}

func (c *TestClient) do(method string, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.ts.URL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpCli.Do(req)
	require.NoError(c.t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 {
		//配列レスポンスはitemsにラップして返す
		if raw[0] == '[' {
			var list []interface{}
			require.NoError(c.t, json.Unmarshal(raw, &list))
			decoded = map[string]interface{}{"items": list}
		} else {
			require.NoError(c.t, json.Unmarshal(raw, &decoded))
		}
	}

	return res, decoded
}

func (c *TestClient) postJSON(path string, body interface{}) (*http.Response, map[string]interface{}) {
	return c.do(http.MethodPost, path, body, nil)
}

func (c *TestClient) getAuthed(path string, accessToken string) (*http.Response, map[string]interface{}) {
	return c.do(http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + accessToken})
}

func (c *TestClient) deleteAuthed(path string, accessToken string) (*http.Response, map[string]interface{}) {
	return c.do(http.MethodDelete, path, nil, map[string]string{"Authorization": "Bearer " + accessToken})
}

// refresh_token cookieの現在値（保持していなければ空）
func (c *TestClient) refreshCookie() string {
	c.t.Helper()

	u, err := url.Parse(c.ts.URL)
	require.NoError(c.t, err)

	for _, ck := range c.httpCli.Jar.Cookies(u) {
		if ck.Name == handler.RefreshCookieName {
			return ck.Value
		}
	}
	return ""
}

// jarを無視して任意のcookieを手で付けてリクエストする（盗まれた旧cookieの再利用など）
func (c *TestClient) postWithRawCookie(path string, cookieName string, cookieValue string) (*http.Response, map[string]interface{}) {
	c.t.Helper()

	req, err := http.NewRequest(http.MethodPost, c.ts.URL+path, nil)
	require.NoError(c.t, err)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookieValue})

	//jarなしクライアントで送る
	cli := &http.Client{Timeout: 5 * time.Second}
	res, err := cli.Do(req)
	require.NoError(c.t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded))
	}

	return res, decoded
}

// 衝突しないユーザー名を発番して登録まで済ませる
func registerUser(t *testing.T, c *TestClient) (username string, password string) {
	t.Helper()

	username = fmt.Sprintf("user-%d", atomic.AddInt64(&userSeq, 1))
	password = "correct-pw-123"

	res, _ := c.postJSON("/register", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	return username, password
}

// 登録＋ログインしてアクセストークンを返す
func loginUser(t *testing.T, c *TestClient) (accessToken string, username string, password string) {
	t.Helper()

	username, password = registerUser(t, c)

	res, body := c.postJSON("/token", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	accessToken, _ = body["access_token"].(string)
	require.NotEmpty(t, accessToken)

	return accessToken, username, password
}
