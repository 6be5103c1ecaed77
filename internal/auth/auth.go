package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store    *Store
	sessions *SessionManager
}

func NewService(store *Store, sessions *SessionManager) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
	}
}

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Login checks the credential and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	c, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.sessions.Create()
}

// Logout ends the session identified by token.
func (s *Service) Logout(token string) error {
	if !s.sessions.Destroy(token) {
		return ErrInvalidToken
	}
	return nil
}

func (s *Service) Verify(token string) error {
	if !s.sessions.Valid(token) {
		return ErrInvalidToken
	}
	return nil
}

// ActiveSessions reports how many tokens are currently valid.
func (s *Service) ActiveSessions() int {
	return s.sessions.Len()
}
