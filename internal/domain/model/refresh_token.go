package model

import "time"

// token種別（現状はrefreshのみ。将来の拡張用）
const TokenTypeRefresh = "refresh"

// 発行・ローテーション時に記録するセキュリティメタデータ
type TokenMetadata struct {
	UserAgent string
	IPAddress string
}

// refresh tokenの1レコード。平文の秘密値は保存しない（token_hashのみ）
type RefreshToken struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64      `json:"userId" gorm:"not null;index"`
	TokenHash string     `json:"-" gorm:"not null;uniqueIndex"`
	TokenType string     `json:"tokenType" gorm:"type:varchar(20);not null;default:'refresh'"`
	UserAgent string     `json:"userAgent"`
	IPAddress string     `json:"ipAddress"`
	IssuedAt  time.Time  `json:"issuedAt" gorm:"not null"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"not null;index"`
	IsRevoked bool       `json:"isRevoked" gorm:"not null;default:false;index"`
	RevokedAt *time.Time `json:"revokedAt"`
}

// 有効期限切れかどうか
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// 現在有効（未失効かつ期限内）かどうか
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.IsRevoked && !t.Expired(now)
}
