// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for user accounts
// and the categories providers have submitted verification documents for.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - Unique violations surface as ErrDuplicate.
//   - Other DB errors propagate unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint rejected the write.
var ErrDuplicate = errors.New("duplicate")

// CreateUser inserts u, assigning an ID when empty. Email is stored
// lower-cased. A taken email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Verification == "" {
		u.Verification = domain.VerificationNone
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches a user by ID.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by (case-insensitive) email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// BumpTokenVersion increments the user's token version, invalidating every
// token issued before the call, and returns the new version.
func BumpTokenVersion(ctx context.Context, db *gorm.DB, id string) (int, error) {
	var version int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).
			Where("id = ?", id).
			Update("token_version", gorm.Expr("token_version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&domain.User{}).Where("id = ?", id).Select("token_version").Scan(&version).Error
	})
	return version, err
}

// ReplaceProviderCategories swaps a provider's submitted categories for cats
// and marks the provider's verification as submitted, atomically.
func ReplaceProviderCategories(ctx context.Context, db *gorm.DB, providerID string, cats []domain.ProviderCategory) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ?", providerID).Delete(&domain.ProviderCategory{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range cats {
			cats[i].ID = uuid.NewString()
			cats[i].ProviderID = providerID
			cats[i].CreatedAt = now
		}
		if len(cats) > 0 {
			if err := tx.Create(&cats).Error; err != nil {
				if isDuplicateErr(err) {
					return ErrDuplicate
				}
				return err
			}
		}
		res := tx.Model(&domain.User{}).
			Where("id = ?", providerID).
			Update("verification", domain.VerificationSubmitted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListProviderCategories returns the provider's categories in name order.
func ListProviderCategories(ctx context.Context, db *gorm.DB, providerID string) ([]domain.ProviderCategory, error) {
	var out []domain.ProviderCategory
	err := db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("category asc").
		Find(&out).Error
	return out, err
}

// isDuplicateErr detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite returns plain-text errors; Postgres says "duplicate key".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
