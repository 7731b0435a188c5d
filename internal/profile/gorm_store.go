package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userDocument struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	Email         string `gorm:"column:email;not null;default:''"`
	DisplayName   string `gorm:"column:display_name;not null;default:''"`
	AvatarURL     string `gorm:"column:avatar_url;not null;default:''"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null;default:0"`
	LastLoginUnix int64  `gorm:"column:last_login_unix;not null;default:0"`
}

func (userDocument) TableName() string {
	return "users"
}

// GormStore keeps records in a SQL "users" table.
type GormStore struct {
	db          *gorm.DB
	driverLabel string
}

// NewGormStore migrates the users table on gormDB.
func NewGormStore(ctx context.Context, gormDB *gorm.DB, driverLabel string) (*GormStore, error) {
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userDocument{}); migrateErr != nil {
		return nil, fmt.Errorf("profile_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &GormStore{db: gormDB, driverLabel: driverLabel}, nil
}

func (store *GormStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	var document userDocument
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&document).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("profile_store.get.%s: %w", store.driverLabel, err)
	}
	return Record{
		UserID:      document.UserID,
		Email:       document.Email,
		DisplayName: document.DisplayName,
		AvatarURL:   document.AvatarURL,
		CreatedAt:   unixTime(document.CreatedAtUnix),
		LastLogin:   unixTime(document.LastLoginUnix),
	}, true, nil
}

func (store *GormStore) Merge(ctx context.Context, record Record) error {
	if record.UserID == "" {
		return ErrEmptyUserID
	}
	document := userDocument{UserID: record.UserID}
	updateColumns := make([]string, 0, 5)
	if record.Email != "" {
		document.Email = record.Email
		updateColumns = append(updateColumns, "email")
	}
	if record.DisplayName != "" {
		document.DisplayName = record.DisplayName
		updateColumns = append(updateColumns, "display_name")
	}
	if record.AvatarURL != "" {
		document.AvatarURL = record.AvatarURL
		updateColumns = append(updateColumns, "avatar_url")
	}
	if !record.CreatedAt.IsZero() {
		document.CreatedAtUnix = record.CreatedAt.UTC().Unix()
		updateColumns = append(updateColumns, "created_at_unix")
	}
	if !record.LastLogin.IsZero() {
		document.LastLoginUnix = record.LastLogin.UTC().Unix()
		updateColumns = append(updateColumns, "last_login_unix")
	}
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}
	if len(updateColumns) > 0 {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}
	}
	if err := store.db.WithContext(ctx).Clauses(onConflict).Create(&document).Error; err != nil {
		return fmt.Errorf("profile_store.merge.%s: %w", store.driverLabel, err)
	}
	return nil
}

func unixTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
