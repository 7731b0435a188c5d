package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DatabaseCredentialTokenStore persists credential tokens using GORM.
type DatabaseCredentialTokenStore struct {
	db          *gorm.DB
	driverLabel string
}

type credentialTokenRecord struct {
	TokenID       string `gorm:"column:token_id;primaryKey"`
	UserID        string `gorm:"column:user_id;index;not null"`
	TokenHash     string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnix   int64  `gorm:"column:expires_unix;not null"`
	RevokedAtUnix int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	IssuedAtUnix  int64  `gorm:"column:issued_at_unix;not null"`
}

func (credentialTokenRecord) TableName() string {
	return "credential_tokens"
}

// NewDatabaseCredentialTokenStore migrates the token table on gormDB.
func NewDatabaseCredentialTokenStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*DatabaseCredentialTokenStore, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialTokenRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("credential_token.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseCredentialTokenStore{db: gormDB, driverLabel: driverLabel}, nil
}

// Issue inserts a new token record and returns its identifiers.
func (store *DatabaseCredentialTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64) (string, string, error) {
	now := time.Now().UTC()
	opaqueToken, hashValue, randomErr := generateCredentialOpaque()
	if randomErr != nil {
		return "", "", fmt.Errorf("credential_token.issue.%s: %w", store.driverLabel, randomErr)
	}
	record := credentialTokenRecord{
		TokenID:      newCredentialTokenID(now) + "-" + hashValue[:8],
		UserID:       applicationUserID,
		TokenHash:    hashValue,
		ExpiresUnix:  expiresUnix,
		IssuedAtUnix: now.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", "", fmt.Errorf("credential_token.issue.%s: %w", store.driverLabel, err)
	}
	return record.TokenID, opaqueToken, nil
}

// Validate locates a token by its opaque value.
func (store *DatabaseCredentialTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", "", fmt.Errorf("credential_token.validate.%s: %w", store.driverLabel, ErrCredentialTokenEmpty)
	}
	var record credentialTokenRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", hashOpaque(tokenOpaque)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", fmt.Errorf("credential_token.validate.%s: %w", store.driverLabel, ErrCredentialTokenNotFound)
		}
		return "", "", fmt.Errorf("credential_token.validate.%s: %w", store.driverLabel, err)
	}
	if record.RevokedAtUnix != 0 {
		return "", "", fmt.Errorf("credential_token.validate.%s: %w", store.driverLabel, ErrCredentialTokenRevoked)
	}
	if time.Unix(record.ExpiresUnix, 0).Before(time.Now().UTC()) {
		return "", "", fmt.Errorf("credential_token.validate.%s: %w", store.driverLabel, ErrCredentialTokenExpired)
	}
	return record.UserID, record.TokenID, nil
}

// Revoke marks a token as revoked.
func (store *DatabaseCredentialTokenStore) Revoke(ctx context.Context, tokenID string) error {
	result := store.db.WithContext(ctx).Model(&credentialTokenRecord{}).
		Where("token_id = ? AND revoked_at_unix = 0", tokenID).
		Update("revoked_at_unix", time.Now().UTC().Unix())
	if result.Error != nil {
		return fmt.Errorf("credential_token.revoke.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var record credentialTokenRecord
		findErr := store.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&record).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("credential_token.revoke.%s: %w", store.driverLabel, ErrCredentialTokenNotFound)
		}
		if findErr != nil {
			return fmt.Errorf("credential_token.revoke.%s: %w", store.driverLabel, findErr)
		}
	}
	return nil
}
