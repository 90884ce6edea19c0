package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// 実行環境（cookie属性の切り替えに使う）
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5433）

	// JWT署名シークレット。未設定でも起動は続行し、
	// トークン操作の時点でMissingSecretとして失敗させる。
	// プレースホルダへのフォールバックはしない
	JWTSecret string

	TokenIssuer string // アクセストークンのiss claim

	AccessTokenTTL  time.Duration // アクセストークン有効期限（デフォルト1h）
	RefreshTokenTTL time.Duration // refresh token有効期限（デフォルト30日）
	CleanupInterval time.Duration // 期限切れ掃除の間隔（デフォルト1h）

	// refresh時に新しいrefresh tokenへ差し替えるか（デフォルトtrue）
	RefreshRotation bool

	GoEnv     string // development/staging/production
	APIDomain string // APIドメイン（cookieなどで使う）
	FEURL     string // フロントURL（CORSで使う）
}

// Loadは環境変数から設定を読み込む
func Load() (Config, error) {
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return Config{}, err
	}

	accessTTL, err := envSeconds("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	refreshTTL, err := envSeconds("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cleanupInterval, err := envSeconds("TOKEN_CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: os.Getenv("PORT"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,

		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenIssuer: os.Getenv("TOKEN_ISSUER"),

		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
		CleanupInterval: cleanupInterval,

		RefreshRotation: envBool("REFRESH_ROTATION", true),

		GoEnv:     os.Getenv("GO_ENV"),
		APIDomain: os.Getenv("API_DOMAIN"),
		FEURL:     os.Getenv("FE_URL"),
	}

	//必須チェック（JWT_SECRETは意図的に除外。トークン操作時にチェックする）
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.PostgresUser == "" {
		return Config{}, fmt.Errorf("POSTGRES_USER is required")
	}
	if cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if cfg.PostgresDB == "" {
		return Config{}, fmt.Errorf("POSTGRES_DB is required")
	}
	if cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("POSTGRES_HOST is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	switch cfg.GoEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return Config{}, fmt.Errorf("GO_ENV must be one of development/staging/production: %q", cfg.GoEnv)
	}
	if cfg.APIDomain == "" {
		return Config{}, fmt.Errorf("API_DOMAIN is required")
	}
	if cfg.FEURL == "" {
		return Config{}, fmt.Errorf("FE_URL is required")
	}

	if cfg.TokenIssuer == "" {
		cfg.TokenIssuer = cfg.APIDomain
	}

	return cfg, nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

// 秒指定の環境変数をDurationへ。未設定ならデフォルト
func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("%s must be positive seconds: %q", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	default:
		return def
	}
}
