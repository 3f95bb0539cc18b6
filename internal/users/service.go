package users

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/notehub/internal/auth"
	"example.com/notehub/internal/events"
	"example.com/notehub/internal/messaging"
)

// User is a registered account. The password hash never leaves the service.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrNotFound           = errors.New("user not found")
)

// Service owns user accounts and publishes user events after its own
// commits. Publishing is strictly best-effort: the mutation has already
// committed, so a broker failure is logged and swallowed.
type Service struct {
	db        *gorm.DB
	publisher messaging.Publisher
}

func NewService(db *gorm.DB, publisher messaging.Publisher) *Service {
	return &Service{db: db, publisher: publisher}
}

// UpdateParams carries optional profile changes; nil fields are untouched.
type UpdateParams struct {
	Username *string
	Email    *string
	Password *string
}

// Register creates an account and publishes user.registered.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if taken, err := s.exists(ctx, "username", username, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := s.exists(ctx, "email", email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := User{Username: username, Email: email, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, errors.Wrap(err, "creating user")
	}

	ev := events.NewUserRegistered(user.ID, user.Username, user.Email, time.Now().UTC())
	if err := s.publisher.Publish(ctx, events.UsersExchange, ev); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to publish user.registered event")
	}

	return &user, nil
}

// Authenticate verifies credentials and publishes user.logged_in on
// success. Token issuance stays with the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading user")
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	ev := events.NewUserLoggedIn(user.ID, user.Username, time.Now().UTC())
	if err := s.publisher.Publish(ctx, events.UsersExchange, ev); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to publish user.logged_in event")
	}

	return &user, nil
}

// Get returns one user by id.
func (s *Service) Get(ctx context.Context, id uint) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading user")
	}
	return &user, nil
}

// List returns users with offset pagination.
func (s *Service) List(ctx context.Context, skip, limit int) ([]User, error) {
	var list []User
	if err := s.db.WithContext(ctx).
		Offset(skip).
		Limit(limit).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	return list, nil
}

// Update applies the provided profile changes, enforcing uniqueness.
func (s *Service) Update(ctx context.Context, id uint, params UpdateParams) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Username != nil {
		if taken, err := s.exists(ctx, "username", *params.Username, id); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrUsernameTaken
		}
		user.Username = *params.Username
	}

	if params.Email != nil {
		if taken, err := s.exists(ctx, "email", *params.Email, id); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrEmailTaken
		}
		user.Email = *params.Email
	}

	if params.Password != nil {
		hash, err := auth.HashPassword(*params.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, errors.Wrap(err, "updating user")
	}
	return user, nil
}

// Delete removes the account. No event is published for deletion.
func (s *Service) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&User{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "deleting user")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) exists(ctx context.Context, column, value string, excludeID uint) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&User{}).Where(column+" = ?", value)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, errors.Wrapf(err, "checking %s uniqueness", column)
	}
	return count > 0, nil
}
