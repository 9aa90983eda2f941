package remotetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
)

// Users is an in-memory auth.UserStore.
type Users struct {
	mu      sync.Mutex
	byEmail map[string]auth.User
	seq     int
}

var _ auth.UserStore = (*Users)(nil)

func NewUsers() *Users {
	return &Users{byEmail: map[string]auth.User{}}
}

func (u *Users) CreateUser(_ context.Context, email, hash string) (auth.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byEmail[email]; ok {
		return auth.User{}, auth.ErrEmailExists
	}
	u.seq++
	user := auth.User{ID: fmt.Sprintf("user-%d", u.seq), Email: email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	u.byEmail[email] = user
	return user, nil
}

func (u *Users) UserByEmail(_ context.Context, email string) (auth.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byEmail[email]
	if !ok {
		return auth.User{}, model.ErrNotFound
	}
	return user, nil
}
