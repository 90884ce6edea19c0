package main

import (
	"context"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/middleware"
	"app/internal/server"
	"app/internal/usecase"
	"app/internal/validator"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

func main() {
	//.envは無くてもよい（コンテナでは環境変数を直接渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("DB接続に失敗: %v", err)
	}

	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
	); err != nil {
		log.Fatalf("マイグレーションに失敗: %v", err)
	}

	//Repository（GORM実装）生成。refresh secretのハッシュ鍵は署名シークレットと共用
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB, []byte(cfg.JWTSecret))

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo, rtRepo, validator.NewAuthValidator())

	//Handler生成
	policy := handler.NewEnvCookiePolicy(cfg)
	authH := handler.NewAuthHandler(authUC, policy, cfg.RefreshTokenTTL)

	e := server.New(cfg, authH, middleware.AuthJWT(authUC))

	//シークレット未設定でも起動は続ける。トークン操作は全部500になる
	if cfg.JWTSecret == "" {
		e.Logger.Warn("JWT_SECRETが未設定。トークンの発行・検証は失敗します")
	}

	//期限切れrefresh tokenの定期掃除
	go func() {
		t := time.NewTicker(cfg.CleanupInterval)
		defer t.Stop()
		for range t.C {
			n, err := authUC.CleanExpired(context.Background())
			if err != nil {
				e.Logger.Errorf("期限切れrefresh tokenの削除に失敗: %v", err)
				continue
			}
			if n > 0 {
				e.Logger.Infof("期限切れrefresh tokenを%d件削除", n)
			}
		}
	}()

	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	if err := server.Start(e, addr); err != nil {
		e.Logger.Fatal(err)
	}
}
