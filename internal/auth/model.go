package auth

import "time"

// Credential is a stored login. Only the bcrypt hash of the password is kept.
type Credential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// LoginRequest is the body accepted by the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Session struct {
	Token    string
	IssuedAt time.Time
}
