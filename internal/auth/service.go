// internal/auth/service.go
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"quiz-battle/internal/apperr"
	"quiz-battle/internal/models"
)

const tokenTTL = 24 * time.Hour

type Service struct {
	repo      *Repository
	jwtSecret []byte
}

func NewService(repo *Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.New(apperr.Unauthenticated, "Invalid credentials.")
	}
	if err != nil {
		return "", apperr.Wrap(err, apperr.Internal, "look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", apperr.New(apperr.Unauthenticated, "Invalid credentials.")
	}

	return s.IssueToken(user)
}

// IssueToken signs an identity token for user.
func (s *Service) IssueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", apperr.Wrap(err, apperr.Internal, "sign token")
	}
	return tokenString, nil
}

func (s *Service) Register(ctx context.Context, user *models.User) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || user.Password == "" {
		return apperr.New(apperr.InvalidArgument, "Username and password are required.")
	}
	if user.Username == models.AIPlayerID {
		return apperr.New(apperr.InvalidArgument, "Username is reserved.")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "hash password")
	}

	user.ID = uuid.NewString()
	user.Password = string(hashedPassword)
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return apperr.Wrap(err, apperr.InvalidArgument, "Registration failed.")
	}
	return nil
}
