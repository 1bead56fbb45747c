package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// MemoryRepo is an in-process user store for development and tests. A single
// mutex makes the uniqueness check and the insert one atomic step.
type MemoryRepo struct {
	mu         sync.RWMutex
	byUID      map[string]*entity.User
	byUsername map[string]string
	byPhone    map[string]string
	byEmail    map[string]string
	// deleted keeps removed uids so they are never handed out again.
	deleted map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byUID:      make(map[string]*entity.User),
		byUsername: make(map[string]string),
		byPhone:    make(map[string]string),
		byEmail:    make(map[string]string),
		deleted:    make(map[string]struct{}),
	}
}

func clone(u *entity.User) *entity.User {
	c := *u
	return &c
}

func (r *MemoryRepo) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUID[u.UID]; ok {
		return &DuplicateError{Field: "uid"}
	}
	if _, ok := r.deleted[u.UID]; ok {
		return &DuplicateError{Field: "uid"}
	}
	if _, ok := r.byUsername[u.Username]; ok {
		return &DuplicateError{Field: "username"}
	}
	if u.Phone != nil {
		if _, ok := r.byPhone[*u.Phone]; ok {
			return &DuplicateError{Field: "phone"}
		}
	}
	if u.Email != nil {
		if _, ok := r.byEmail[*u.Email]; ok {
			return &DuplicateError{Field: "email"}
		}
	}

	r.byUID[u.UID] = clone(u)
	r.byUsername[u.Username] = u.UID
	if u.Phone != nil {
		r.byPhone[*u.Phone] = u.UID
	}
	if u.Email != nil {
		r.byEmail[*u.Email] = u.UID
	}
	return nil
}

func (r *MemoryRepo) lookup(index map[string]string, key string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := index[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r.byUID[uid]), nil
}

func (r *MemoryRepo) GetByUID(_ context.Context, uid string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byUID[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepo) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	return r.lookup(r.byUsername, username)
}

func (r *MemoryRepo) GetByPhone(_ context.Context, phone string) (*entity.User, error) {
	return r.lookup(r.byPhone, phone)
}

func (r *MemoryRepo) List(_ context.Context, limit, offset int) ([]*entity.User, error) {
	r.mu.RLock()
	all := make([]*entity.User, 0, len(r.byUID))
	for _, u := range r.byUID {
		all = append(all, clone(u))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].UID < all[j].UID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []*entity.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepo) SetBanned(_ context.Context, uid string, banned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byUID[uid]
	if !ok {
		return ErrNotFound
	}
	u.Banned = banned
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byUID[uid]
	if !ok {
		return ErrNotFound
	}
	delete(r.byUID, uid)
	delete(r.byUsername, u.Username)
	if u.Phone != nil {
		delete(r.byPhone, *u.Phone)
	}
	if u.Email != nil {
		delete(r.byEmail, *u.Email)
	}
	r.deleted[uid] = struct{}{}
	return nil
}
