package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// OperatorCredentials identify the single operator allowed to mutate the
// inventory. PasswordHash, when set, takes precedence over Password.
type OperatorCredentials struct {
	Username     string
	Password     string
	PasswordHash string
}

// AuthService issues and validates operator tokens.
type AuthService struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	tokenTTL     time.Duration
}

// NewAuthService creates a new AuthService. A plain password is hashed once
// here so only the bcrypt hash is kept in memory.
func NewAuthService(creds OperatorCredentials, jwtSecret string, tokenTTL time.Duration) (*AuthService, error) {
	if creds.Username == "" {
		return nil, fmt.Errorf("operator username is required")
	}
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	var hash []byte
	switch {
	case creds.PasswordHash != "":
		hash = []byte(creds.PasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("invalid operator password hash: %w", err)
		}
	case creds.Password != "":
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash operator password: %w", err)
		}
	default:
		return nil, fmt.Errorf("operator password or password hash is required")
	}

	return &AuthService{
		username:     creds.Username,
		passwordHash: hash,
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     tokenTTL,
	}, nil
}

// Login checks the operator credentials and returns a signed JWT.
func (s *AuthService) Login(username, password string) (string, error) {
	if username != s.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"operator": s.username,
		"exp":      now.Add(s.tokenTTL).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims["operator"] != s.username {
		return nil, fmt.Errorf("invalid token: unknown operator")
	}
	return claims, nil
}
