package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/enpointe/notes/internal/auth"
)

const (
	minPasswordLength = 8
	// bcrypt only accepts the first 72 bytes.
	maxPasswordLength = 72
)

var (
	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no account matches the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidEmail indicates an email without a local part and domain.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrWeakPassword indicates a password shorter than the minimum length.
	ErrWeakPassword = errors.New("users: password too short")
	// ErrPasswordTooLong indicates a password longer than bcrypt accepts.
	ErrPasswordTooLong = errors.New("users: password too long")
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   PasswordHasher
	Clock    func() time.Time
	NewID    func() (string, error)
	Logger   *zap.Logger
}

// Service manages user accounts and caches id to email lookups.
type Service struct {
	db     *gorm.DB
	hasher PasswordHasher
	now    func() time.Time
	newID  func() (string, error)
	logger *zap.Logger
	emails sync.Map
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = newUUIDv7
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		hasher: hasher,
		now:    clock,
		newID:  newID,
		logger: logger,
	}, nil
}

// Register creates an account for email with the given password.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	normalized := NormalizeEmail(email)
	if !validEmail(normalized) {
		return User{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return User{}, ErrPasswordTooLong
	}

	if _, err := s.FindByEmail(ctx, normalized); err == nil {
		return User{}, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	userID, err := s.newID()
	if err != nil {
		return User{}, fmt.Errorf("users: generate id: %w", err)
	}
	user := User{
		UserID:           userID,
		Email:            normalized,
		PasswordHash:     hash,
		Role:             RoleUser,
		CreatedAtSeconds: s.now().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// The email may have been claimed after the lookup.
		if _, lookupErr := s.FindByEmail(ctx, normalized); lookupErr == nil {
			return User{}, ErrUserExists
		}
		s.logger.Error("user insert failed", zap.Error(err))
		return User{}, fmt.Errorf("users: create user: %w", err)
	}
	s.emails.Store(user.UserID, user.Email)
	return user, nil
}

// Authenticate returns the account when email and password match.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password comparison failed", zap.String("user_id", user.UserID), zap.Error(err))
		}
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// FindByEmail looks up an account by its normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: find by email: %w", err)
	}
	s.emails.Store(user.UserID, user.Email)
	return user, nil
}

// FindByID looks up an account by id.
func (s *Service) FindByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(userID)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: find by id: %w", err)
	}
	s.emails.Store(user.UserID, user.Email)
	return user, nil
}

// EmailsByID resolves emails for the given user ids. Unknown ids are omitted from the result.
func (s *Service) EmailsByID(ctx context.Context, userIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(userIDs))
	missing := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		if _, seen := result[userID]; seen {
			continue
		}
		if cached, ok := s.emails.Load(userID); ok {
			if email, ok := cached.(string); ok {
				result[userID] = email
				continue
			}
		}
		missing = append(missing, userID)
	}
	if len(missing) == 0 {
		return result, nil
	}

	var rows []User
	if err := s.db.WithContext(ctx).Select("user_id", "email").Where("user_id IN ?", missing).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("users: load emails: %w", err)
	}
	for _, row := range rows {
		result[row.UserID] = row.Email
		s.emails.Store(row.UserID, row.Email)
	}
	return result, nil
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func newUUIDv7() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
