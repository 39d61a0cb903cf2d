package account

import (
	"context"
	"errors"
	"time"

	dbadapter "github.com/hearthchat/server/db"
	"github.com/hearthchat/server/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountBanned      = errors.New("account banned")
	ErrUserNotFound       = errors.New("user not found")
)

// User is the public view of an account and its profile. It never carries
// the password hash.
type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	DisplayUsername string    `json:"displayUsername"`
	AboutMe         string    `json:"aboutMe"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toUser(acc *model.Account) User {
	display := acc.Profile.DisplayUsername
	if display == "" {
		display = acc.Username
	}
	return User{
		ID:              acc.ID,
		Username:        acc.Username,
		DisplayUsername: display,
		AboutMe:         acc.Profile.AboutMe,
		CreatedAt:       acc.CreatedAt,
	}
}

// ProfileUpdate holds the optional fields of a profile edit. Nil leaves the
// field unchanged.
type ProfileUpdate struct {
	DisplayUsername *string
	AboutMe         *string
}

// Service owns the credential and profile stores.
type Service struct {
	db         *gorm.DB
	bcryptCost int
	dummyHash  []byte
	logger     *zap.Logger
}

// NewService creates an account Service. bcryptCost outside bcrypt's valid
// range falls back to bcrypt.DefaultCost.
func NewService(db *gorm.DB, bcryptCost int, logger *zap.Logger) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	// Compared against when the username is unknown so that login latency
	// does not reveal which usernames exist.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("hearth-dummy-password"), bcryptCost)
	return &Service{db: db, bcryptCost: bcryptCost, dummyHash: dummy, logger: logger}
}

// Signup creates an account and its profile in one transaction.
func (s *Service) Signup(ctx context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	acc := &model.Account{
		Username:     username,
		PasswordHash: string(hash),
		Status:       model.AccountNormal,
		Profile:      model.Profile{DisplayUsername: username},
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(acc).Error
	})
	if err != nil {
		// Unique constraint violation: a concurrent signup won the name.
		if dbadapter.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.logger.Info("account created", zap.Int64("account_id", acc.ID), zap.String("username", username))
	u := toUser(acc)
	return &u, nil
}

// Authenticate verifies a username/password pair. Unknown usernames and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).Preload("Profile").Where("username = ?", username).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if acc.Status == model.AccountBanned {
		return nil, ErrAccountBanned
	}
	u := toUser(&acc)
	return &u, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).Preload("Profile").First(&acc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u := toUser(&acc)
	return &u, nil
}

// Exists reports whether an account with the given id exists.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// GetMany returns the users for ids keyed by id. Unknown ids are omitted.
func (s *Service) GetMany(ctx context.Context, ids []int64) (map[int64]User, error) {
	out := make(map[int64]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var accs []model.Account
	if err := s.db.WithContext(ctx).Preload("Profile").Where("id IN ?", ids).Find(&accs).Error; err != nil {
		return nil, err
	}
	for i := range accs {
		out[accs[i].ID] = toUser(&accs[i])
	}
	return out, nil
}

// List returns every user except exclude, ordered by username.
func (s *Service) List(ctx context.Context, exclude int64) ([]User, error) {
	var accs []model.Account
	err := s.db.WithContext(ctx).Preload("Profile").
		Where("id <> ?", exclude).
		Order("username ASC").
		Find(&accs).Error
	if err != nil {
		return nil, err
	}
	users := make([]User, len(accs))
	for i := range accs {
		users[i] = toUser(&accs[i])
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of upd to the owner's profile.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*User, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&acc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		profile := model.Profile{AccountID: id, DisplayUsername: acc.Username}
		if err := tx.Where(model.Profile{AccountID: id}).FirstOrCreate(&profile).Error; err != nil {
			return err
		}

		changes := map[string]interface{}{}
		if upd.DisplayUsername != nil {
			changes["display_username"] = *upd.DisplayUsername
		}
		if upd.AboutMe != nil {
			changes["about_me"] = *upd.AboutMe
		}
		if len(changes) > 0 {
			if err := tx.Model(&profile).Updates(changes).Error; err != nil {
				return err
			}
		}
		return tx.Preload("Profile").First(&acc, id).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("profile updated", zap.Int64("account_id", id))
	u := toUser(&acc)
	return &u, nil
}

// SetBanned bans or reinstates an account.
func (s *Service) SetBanned(ctx context.Context, id int64, banned bool) error {
	status := model.AccountNormal
	if banned {
		status = model.AccountBanned
	}
	res := s.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	s.logger.Info("account status changed", zap.Int64("account_id", id), zap.Bool("banned", banned))
	return nil
}

// Count returns the number of accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Account{}).Count(&n).Error
	return n, err
}
