package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DefaultUsername = "admin"
	DefaultPassword = "admin"
)

// Store is the in-memory credential table.
type Store struct {
	mu    sync.RWMutex
	users map[string]Credential
	cost  int
}

// NewStore returns an empty table hashing with the given bcrypt cost;
// zero means bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{users: make(map[string]Credential), cost: cost}
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

func (s *Store) GetByUsername(ctx context.Context, username string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &c, nil
}

func (s *Store) Create(ctx context.Context, username, password string) (*Credential, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, ErrUserExists
	}
	c := Credential{Username: username, PasswordHash: string(hash)}
	s.users[username] = c
	return &c, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

type usersFile struct {
	Users []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"users"`
}

// SeedFromFile adds the users listed in a YAML file. Entries without a
// username or password and users already present are skipped.
func (s *Store) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, u := range uf.Users {
		if u.Username == "" || u.Password == "" {
			continue
		}
		if _, err := s.Create(ctx, u.Username, u.Password); err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
	}
	return nil
}

// SeedDefault installs the admin/admin credential when the table is empty.
func (s *Store) SeedDefault(ctx context.Context) error {
	if s.Len() > 0 {
		return nil
	}
	_, err := s.Create(ctx, DefaultUsername, DefaultPassword)
	return err
}
