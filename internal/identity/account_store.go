package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var errAccountNotFound = errors.New("account_store.not_found")

// Account is a locally managed identity.
type Account struct {
	UserID           string `gorm:"column:user_id;primaryKey"`
	Email            string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash     string `gorm:"column:password_hash;not null;default:''"`
	DisplayName      string `gorm:"column:display_name;not null;default:''"`
	AvatarURL        string `gorm:"column:avatar_url;not null;default:''"`
	Disabled         bool   `gorm:"column:disabled;not null;default:false"`
	GoogleSubject    string `gorm:"column:google_subject;index"`
	AppleSubject     string `gorm:"column:apple_subject;index"`
	ResetTokenHash   string `gorm:"column:reset_token_hash;index"`
	ResetExpiresUnix int64  `gorm:"column:reset_expires_unix;not null;default:0"`
	CreatedAtUnix    int64  `gorm:"column:created_at_unix;not null"`
}

func (Account) TableName() string {
	return "accounts"
}

// AccountStore persists accounts with GORM.
type AccountStore struct {
	db          *gorm.DB
	driverLabel string
}

// NewAccountStore migrates the accounts table on gormDB.
func NewAccountStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*AccountStore, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&Account{}); migrateErr != nil {
		return nil, fmt.Errorf("account_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &AccountStore{db: gormDB, driverLabel: driverLabel}, nil
}

// FindByEmail looks an account up by its normalized email.
func (store *AccountStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	return store.take(ctx, "find_by_email", "email = ?", normalizeEmail(email))
}

// FindBySubject looks an account up by a linked social subject.
func (store *AccountStore) FindBySubject(ctx context.Context, provider SocialProvider, subject string) (Account, error) {
	switch provider {
	case SocialGoogle:
		return store.take(ctx, "find_by_subject", "google_subject = ?", subject)
	case SocialApple:
		return store.take(ctx, "find_by_subject", "apple_subject = ?", subject)
	default:
		return Account{}, fmt.Errorf("account_store.find_by_subject.%s: %w", store.driverLabel, errAccountNotFound)
	}
}

// FindByResetHash looks an account up by its pending reset token hash.
func (store *AccountStore) FindByResetHash(ctx context.Context, resetHash string) (Account, error) {
	if resetHash == "" {
		return Account{}, fmt.Errorf("account_store.find_by_reset.%s: %w", store.driverLabel, errAccountNotFound)
	}
	return store.take(ctx, "find_by_reset", "reset_token_hash = ?", resetHash)
}

// Create inserts a new account.
func (store *AccountStore) Create(ctx context.Context, account Account) error {
	account.Email = normalizeEmail(account.Email)
	if err := store.db.WithContext(ctx).Create(&account).Error; err != nil {
		return fmt.Errorf("account_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Save overwrites every column of an existing account.
func (store *AccountStore) Save(ctx context.Context, account Account) error {
	if err := store.db.WithContext(ctx).Save(&account).Error; err != nil {
		return fmt.Errorf("account_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

// SetDisabled toggles the disabled flag for the account with email.
func (store *AccountStore) SetDisabled(ctx context.Context, email string, disabled bool) error {
	result := store.db.WithContext(ctx).Model(&Account{}).
		Where("email = ?", normalizeEmail(email)).
		Update("disabled", disabled)
	if result.Error != nil {
		return fmt.Errorf("account_store.set_disabled.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("account_store.set_disabled.%s: %w", store.driverLabel, errAccountNotFound)
	}
	return nil
}

func (store *AccountStore) take(ctx context.Context, operation string, query string, argument any) (Account, error) {
	var account Account
	err := store.db.WithContext(ctx).Where(query, argument).Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, fmt.Errorf("account_store.%s.%s: %w", operation, store.driverLabel, errAccountNotFound)
		}
		return Account{}, fmt.Errorf("account_store.%s.%s: %w", operation, store.driverLabel, err)
	}
	return account, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
