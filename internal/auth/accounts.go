package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/smartcart/internal/model"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
)

// User is an account as stored by the backend.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists accounts. UserByEmail returns model.ErrNotFound for
// unknown emails and CreateUser returns ErrEmailExists for taken ones.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
}

// Credentials are what a user signs up or in with.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Session is the result of a successful register or login.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Accounts registers and authenticates users.
type Accounts struct {
	users  UserStore
	tokens *TokenManager
	cost   int
}

func NewAccounts(users UserStore, tokens *TokenManager) *Accounts {
	return &Accounts{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Register creates an account and signs it in.
func (a *Accounts) Register(ctx context.Context, c Credentials) (Session, error) {
	c.Email = normalizeEmail(c.Email)
	if err := model.Validate(c); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), a.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := a.users.CreateUser(ctx, c.Email, string(hash))
	if err != nil {
		return Session{}, err
	}
	return a.session(u)
}

// Login checks the password and issues a token.
func (a *Accounts) Login(ctx context.Context, c Credentials) (Session, error) {
	u, err := a.users.UserByEmail(ctx, normalizeEmail(c.Email))
	if errors.Is(err, model.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(c.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return a.session(u)
}

func (a *Accounts) session(u User) (Session, error) {
	token, err := a.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: u.ID, Email: u.Email}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
