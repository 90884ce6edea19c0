package repository

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// conditional updateが0件だったとき、理由の切り分けに使う内部エラー
var errRotateLostRace = errors.New("rotate conditional update affected no rows")

// 秘密値はHMAC-SHA256（サービスシークレットが鍵）でハッシュ化して保存する。
// 単純なsha256と違い、DBだけ盗まれてもハッシュの再計算ができない
func hashRefreshSecret(key []byte, rawSecret string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(rawSecret))
	return hex.EncodeToString(mac.Sum(nil))
}

type refreshTokenGormRepository struct {
	db      *gorm.DB // DB接続（GORM）
	hashKey []byte   // 秘密値ハッシュ用の鍵
}

// GORM実装
func NewRefreshTokenRepository(db *gorm.DB, hashKey []byte) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db, hashKey: hashKey}
}

// 新規レコードを保存。token_hashのunique違反は衝突としてエラー
func (r *refreshTokenGormRepository) Store(ctx context.Context, userID int64, rawSecret string, expiresAt time.Time, meta model.TokenMetadata) error {
	rec := &model.RefreshToken{
		UserID:    userID,
		TokenHash: hashRefreshSecret(r.hashKey, rawSecret),
		TokenType: model.TokenTypeRefresh,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("refresh token hash collision: %w", err)
		}
		return err
	}
	return nil
}

// 有効なレコードを1件引く
func (r *refreshTokenGormRepository) Validate(ctx context.Context, rawSecret string) (*model.RefreshToken, error) {
	tokenHash := hashRefreshSecret(r.hashKey, rawSecret)

	var rec model.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrRefreshTokenNotFound
		}
		return nil, err
	}

	now := time.Now()

	if rec.IsRevoked {
		return &rec, repo.ErrRefreshTokenRevoked
	}

	// 期限切れは見つけ次第失効させる（リトライで通さない）
	if rec.Expired(now) {
		_ = r.revokeRecord(ctx, r.db, rec.ID, now)
		return &rec, repo.ErrRefreshTokenExpired
	}

	return &rec, nil
}

// 旧secretの失効＋新レコードの挿入を1トランザクションで行う。
// 失効はis_revoked=falseガード付きUPDATEなので、同じ旧secretで
// 競合しても行を取れるのは1トランザクションだけ
func (r *refreshTokenGormRepository) Rotate(ctx context.Context, oldRawSecret string, newRawSecret string, newExpiresAt time.Time, meta model.TokenMetadata) (*model.RefreshToken, error) {
	oldHash := hashRefreshSecret(r.hashKey, oldRawSecret)
	newHash := hashRefreshSecret(r.hashKey, newRawSecret)
	now := time.Now()

	var old model.RefreshToken

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.RefreshToken{}).
			Where("token_hash = ? AND is_revoked = ? AND expires_at >= ?", oldHash, false, now).
			Updates(map[string]interface{}{
				"is_revoked": true,
				"revoked_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRotateLostRace
		}

		if err := tx.Where("token_hash = ?", oldHash).First(&old).Error; err != nil {
			return err
		}

		newRec := &model.RefreshToken{
			UserID:    old.UserID,
			TokenHash: newHash,
			TokenType: model.TokenTypeRefresh,
			UserAgent: meta.UserAgent,
			IPAddress: meta.IPAddress,
			IssuedAt:  now,
			ExpiresAt: newExpiresAt,
		}

		// 挿入に失敗したらトランザクションごと巻き戻す
		// （旧secretの失効も取り消される＝all-or-nothing）
		if err := tx.Create(newRec).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("refresh token hash collision: %w", err)
			}
			return err
		}

		return nil
	})

	if err == nil {
		return &old, nil
	}

	if errors.Is(err, errRotateLostRace) {
		// なぜ取れなかったかをトランザクションの外で判定する。
		// ここでの期限切れ失効はcommitされてよい副作用
		return r.classifyInactive(ctx, oldHash)
	}

	return nil, err
}

// ガード付きUPDATEが外れた理由を調べる
func (r *refreshTokenGormRepository) classifyInactive(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var rec model.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrRefreshTokenNotFound
		}
		return nil, err
	}

	if rec.IsRevoked {
		return &rec, repo.ErrRefreshTokenRevoked
	}

	now := time.Now()
	if rec.Expired(now) {
		_ = r.revokeRecord(ctx, r.db, rec.ID, now)
		return &rec, repo.ErrRefreshTokenExpired
	}

	// UPDATE時点では非アクティブ、再取得ではアクティブ。
	// 別トランザクションと競合したとみなして失効扱い
	return &rec, repo.ErrRefreshTokenRevoked
}

// 有効なレコードを失効させる。対象なしはfalse（冪等）
func (r *refreshTokenGormRepository) Revoke(ctx context.Context, rawSecret string) (bool, error) {
	tokenHash := hashRefreshSecret(r.hashKey, rawSecret)
	now := time.Now()

	res := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("token_hash = ? AND is_revoked = ?", tokenHash, false).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"revoked_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// 所有者スコープ付きのID指定失効
func (r *refreshTokenGormRepository) RevokeByID(ctx context.Context, userID int64, tokenID int64) (bool, error) {
	now := time.Now()

	res := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND user_id = ? AND is_revoked = ?", tokenID, userID, false).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"revoked_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// 指定ユーザーの有効レコードを全失効
func (r *refreshTokenGormRepository) RevokeAllByUserID(ctx context.Context, userID int64) error {
	now := time.Now()

	return r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"revoked_at": &now,
		}).Error
}

// 有効なセッション一覧を新しい順に返す
func (r *refreshTokenGormRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]model.RefreshToken, error) {
	var recs []model.RefreshToken

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_revoked = ? AND expires_at >= ?", userID, false, time.Now()).
		Order("issued_at DESC, id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	return recs, nil
}

// 期限切れレコードを削除。失効済みでも期限内の行は
// 再利用検知のために消さない
func (r *refreshTokenGormRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

// 1行をガード付きで失効させる
func (r *refreshTokenGormRepository) revokeRecord(ctx context.Context, db *gorm.DB, tokenID int64, now time.Time) error {
	return db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND is_revoked = ?", tokenID, false).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"revoked_at": &now,
		}).Error
}

// SQLSTATE 23505（unique違反）かどうか
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
