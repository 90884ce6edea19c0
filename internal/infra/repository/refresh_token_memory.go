package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// インメモリ実装。テストとローカル動作確認用。
// mutex1本でGORM実装と同じconditional-update意味論を再現する
// （ローテーション競合の勝者は必ず1人）
type refreshTokenMemoryRepository struct {
	mu      sync.Mutex
	hashKey []byte
	nextID  int64
	records map[string]*model.RefreshToken // token_hash -> record
}

func NewRefreshTokenMemoryRepository(hashKey []byte) repo.RefreshTokenRepository {
	return &refreshTokenMemoryRepository{
		hashKey: hashKey,
		records: make(map[string]*model.RefreshToken),
	}
}

func (r *refreshTokenMemoryRepository) Store(ctx context.Context, userID int64, rawSecret string, expiresAt time.Time, meta model.TokenMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.insertLocked(userID, rawSecret, expiresAt, meta, time.Now())
	return nil
}

func (r *refreshTokenMemoryRepository) Validate(ctx context.Context, rawSecret string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[hashRefreshSecret(r.hashKey, rawSecret)]
	if !ok {
		return nil, repo.ErrRefreshTokenNotFound
	}

	now := time.Now()

	if rec.IsRevoked {
		return copyRecord(rec), repo.ErrRefreshTokenRevoked
	}
	if rec.Expired(now) {
		rec.IsRevoked = true
		rec.RevokedAt = &now
		return copyRecord(rec), repo.ErrRefreshTokenExpired
	}

	return copyRecord(rec), nil
}

func (r *refreshTokenMemoryRepository) Rotate(ctx context.Context, oldRawSecret string, newRawSecret string, newExpiresAt time.Time, meta model.TokenMetadata) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[hashRefreshSecret(r.hashKey, oldRawSecret)]
	if !ok {
		return nil, repo.ErrRefreshTokenNotFound
	}

	now := time.Now()

	if rec.IsRevoked {
		return copyRecord(rec), repo.ErrRefreshTokenRevoked
	}
	if rec.Expired(now) {
		rec.IsRevoked = true
		rec.RevokedAt = &now
		return copyRecord(rec), repo.ErrRefreshTokenExpired
	}

	// 旧を失効させてから新を挿入。lock内なので外から
	// 両方が有効に見える瞬間はない
	rec.IsRevoked = true
	rec.RevokedAt = &now

	r.insertLocked(rec.UserID, newRawSecret, newExpiresAt, meta, now)

	return copyRecord(rec), nil
}

func (r *refreshTokenMemoryRepository) Revoke(ctx context.Context, rawSecret string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[hashRefreshSecret(r.hashKey, rawSecret)]
	if !ok || rec.IsRevoked {
		return false, nil
	}

	now := time.Now()
	rec.IsRevoked = true
	rec.RevokedAt = &now
	return true, nil
}

func (r *refreshTokenMemoryRepository) RevokeByID(ctx context.Context, userID int64, tokenID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, rec := range r.records {
		if rec.ID == tokenID && rec.UserID == userID && !rec.IsRevoked {
			rec.IsRevoked = true
			rec.RevokedAt = &now
			return true, nil
		}
	}

	return false, nil
}

func (r *refreshTokenMemoryRepository) RevokeAllByUserID(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.IsRevoked {
			rec.IsRevoked = true
			rec.RevokedAt = &now
		}
	}

	return nil
}

func (r *refreshTokenMemoryRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	var recs []model.RefreshToken
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Active(now) {
			recs = append(recs, *rec)
		}
	}

	// 新しい順
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].IssuedAt.Equal(recs[j].IssuedAt) {
			return recs[i].IssuedAt.After(recs[j].IssuedAt)
		}
		return recs[i].ID > recs[j].ID
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	return recs, nil
}

func (r *refreshTokenMemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, hash)
			n++
		}
	}

	return n, nil
}

// lock保持前提
func (r *refreshTokenMemoryRepository) insertLocked(userID int64, rawSecret string, expiresAt time.Time, meta model.TokenMetadata, now time.Time) {
	r.nextID++
	rec := &model.RefreshToken{
		ID:        r.nextID,
		UserID:    userID,
		TokenHash: hashRefreshSecret(r.hashKey, rawSecret),
		TokenType: model.TokenTypeRefresh,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	r.records[rec.TokenHash] = rec
}

// 内部状態を外に握らせない
func copyRecord(rec *model.RefreshToken) *model.RefreshToken {
	c := *rec
	return &c
}
