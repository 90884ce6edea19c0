package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
)

var (
	// ユーザーが見つからない
	ErrUserNotFound = errors.New("user not found")
	// username重複
	ErrUsernameTaken = errors.New("username already taken")
)

// ユーザーの保存・取得を約束
type UserRepository interface {
	// 新規ユーザー作成。username重複はErrUsernameTaken
	Create(ctx context.Context, user *model.User) error
	// usernameから1件取得。見つからなければ(nil, nil)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// IDから1件取得。見つからなければ(nil, nil)
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	// ユーザー情報の更新（最終ログイン等）
	Update(ctx context.Context, user *model.User) error
}
