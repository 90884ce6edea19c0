package repository

import (
	"context"
	"sync"

	"app/internal/domain/model"
	domainrepo "app/internal/repository"
)

// インメモリ実装。テスト用
type userMemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.User
	byName map[string]*model.User
}

func NewUserMemoryRepository() domainrepo.UserRepository {
	return &userMemoryRepository{
		byID:   make(map[int64]*model.User),
		byName: make(map[string]*model.User),
	}
}

func (r *userMemoryRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[user.Username]; ok {
		return domainrepo.ErrUsernameTaken
	}

	r.nextID++
	user.ID = r.nextID

	c := *user
	r.byID[c.ID] = &c
	r.byName[c.Username] = &c
	return nil
}

func (r *userMemoryRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byName[username]
	if !ok {
		return nil, nil
	}

	c := *u
	return &c, nil
}

func (r *userMemoryRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}

	c := *u
	return &c, nil
}

func (r *userMemoryRepository) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byID[user.ID]
	if !ok {
		return domainrepo.ErrUserNotFound
	}

	delete(r.byName, old.Username)

	c := *user
	r.byID[c.ID] = &c
	r.byName[c.Username] = &c
	return nil
}
