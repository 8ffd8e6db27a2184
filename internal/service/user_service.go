package service

import (
	"context"
	"strings"

	"github.com/tazhate/dosebot/internal/domain"
)

// UserService is the identity provider: it maps transport identities to
// domain users, registering them on first contact.
type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) EnsureTelegramUser(ctx context.Context, telegramID int64, name string) (*domain.User, error) {
	u, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, persistenceError("get user", err)
	}
	if u != nil {
		return u, nil
	}

	u = &domain.User{TelegramID: telegramID, Name: strings.TrimSpace(name)}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, persistenceError("create user", err)
	}
	return u, nil
}

// EnsureUser registers an API caller under the id it presents.
func (s *UserService) EnsureUser(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.Validationf("user id is required")
	}

	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, persistenceError("get user", err)
	}
	if u != nil {
		return u, nil
	}

	u = &domain.User{ID: id, Name: id}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, persistenceError("create user", err)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, persistenceError("get user", err)
	}
	return u, nil
}
