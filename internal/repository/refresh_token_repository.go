package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
	"time"
)

var (
	// 一致するレコードなし
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// 期限切れ（検知した側で失効済みへ落とす）
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// 失効済み。ローテーション後の再利用＝盗難の兆候
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)

// refresh tokenの保存・検証・ローテーション・失効の約束。
// 秘密値のハッシュ化は実装側が持つ（平文はDBに入れない）
type RefreshTokenRepository interface {
	// 新規レコードを保存
	Store(ctx context.Context, userID int64, rawSecret string, expiresAt time.Time, meta model.TokenMetadata) error

	// 有効なレコードを1件引く。期限切れを見つけたら失効させてから
	// ErrRefreshTokenExpiredを返す（リトライで通さない）
	Validate(ctx context.Context, rawSecret string) (*model.RefreshToken, error)

	// 旧secretの失効と新レコードの挿入を1トランザクションで行う。
	// 同じ旧secretで競合した場合、勝者は必ず1人。
	// 失効済みを掴んだ場合は再利用検知用に旧レコードも返す
	Rotate(ctx context.Context, oldRawSecret string, newRawSecret string, newExpiresAt time.Time, meta model.TokenMetadata) (*model.RefreshToken, error)

	// 有効なレコードを失効させる。対象なしはfalse（冪等）
	Revoke(ctx context.Context, rawSecret string) (bool, error)

	// 所有者スコープ付きのID指定失効（他ユーザーのIDを当てても効かない）
	RevokeByID(ctx context.Context, userID int64, tokenID int64) (bool, error)

	// 指定ユーザーの有効レコードを全失効（再利用検知時の対応）
	RevokeAllByUserID(ctx context.Context, userID int64) error

	// 有効なセッション一覧を新しい順にlimit件まで返す
	ListByUserID(ctx context.Context, userID int64, limit int) ([]model.RefreshToken, error)

	// 期限切れレコードを削除して件数を返す（cronから呼ぶ）。
	// 失効済みでも期限内の行は再利用検知のために残す
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
