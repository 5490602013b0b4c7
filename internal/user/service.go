package user

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"intern-chat/internal/apperr"
)

type Service struct {
	repo      *Repository
	jwtSecret string
}

type MyJWTClaims struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if strings.TrimSpace(req.Code) == "" || req.Password == "" {
		return nil, apperr.Validation("code and password are required")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Password:    string(hashedPwd),
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Code
	}

	if _, err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	return u, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByCode(ctx, strings.ToUpper(strings.TrimSpace(req.Code)))
	if err != nil {
		return nil, apperr.ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperr.ErrUnauthorized
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		Code:        u.Code,
		DisplayName: u.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "intern-chat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		Code:        u.Code,
		DisplayName: u.DisplayName,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return "", "", apperr.ErrUnauthorized
	}

	return claims.Code, claims.DisplayName, nil
}

// Lookup is the identity service the chat feature consumes: display
// name and avatar for a code, no password material.
func (s *Service) Lookup(ctx context.Context, code string) (*User, error) {
	u, err := s.repo.GetUserByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}
