package service

import (
	"errors"
	"time"

	"momopay/config"
	"momopay/internal/auth"
	"momopay/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCreds   = errors.New("invalid client id or secret")
	ErrClientDisabled = errors.New("client disabled")
)

// ClientStore looks up API clients by their public id.
type ClientStore interface {
	GetByClientID(clientID string) (*models.APIClient, error)
}

type AuthService struct {
	cfg     *config.JWTConfig
	clients ClientStore
}

func NewAuthService(cfg *config.JWTConfig, clients ClientStore) *AuthService {
	return &AuthService{cfg: cfg, clients: clients}
}

// Token exchanges client credentials for a short-lived access token.
func (s *AuthService) Token(clientID, secret string) (string, time.Time, error) {
	if clientID == "" || secret == "" {
		return "", time.Time{}, ErrInvalidCreds
	}
	c, err := s.clients.GetByClientID(clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, ErrInvalidCreds
		}
		return "", time.Time{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return "", time.Time{}, ErrInvalidCreds
	}
	if !c.Active {
		return "", time.Time{}, ErrClientDisabled
	}
	return auth.GenerateAccessToken(s.cfg, c.ClientID, c.Name)
}

// StaticClients serves a fixed client set when no database is configured.
type StaticClients map[string]*models.APIClient

// NewStaticClients hashes the seed client's secret into a single-entry store.
func NewStaticClients(seed *config.SeedClientConfig) (StaticClients, error) {
	out := StaticClients{}
	if seed.ClientID == "" || seed.Secret == "" {
		return out, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	out[seed.ClientID] = &models.APIClient{ClientID: seed.ClientID, Name: seed.Name, SecretHash: string(hash), Active: true}
	return out, nil
}

func (s StaticClients) GetByClientID(clientID string) (*models.APIClient, error) {
	c, ok := s[clientID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}
