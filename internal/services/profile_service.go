// Package services – ProfileService
//
// This file implements account profiles and the provider verification
// submission. Verification is a stub: the submitted categories and document
// names are stored and the account is marked "submitted"; there is no review
// pipeline behind it.
package services

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

// Profile is a user as shown to themselves or to a counterpart.
// Phone is only disclosed to the user and to the other party of an
// awarded job.
type Profile struct {
	ID           string                    `json:"id"`
	Role         domain.Role               `json:"role"`
	DisplayName  string                    `json:"display_name"`
	Username     string                    `json:"username"`
	Email        string                    `json:"email,omitempty"`
	Phone        string                    `json:"phone,omitempty"`
	Verification domain.VerificationStatus `json:"verification"`
	Categories   []string                  `json:"categories,omitempty"`
	Rating       *ProviderRating           `json:"rating,omitempty"`
}

// ProfileService reads profiles and records verification submissions.
type ProfileService struct {
	DB      *gorm.DB
	Catalog *catalog.Catalog
}

// Me returns the session user's full profile.
func (s *ProfileService) Me(ctx context.Context, sess Session) (*Profile, error) {
	u, err := repo.GetUser(ctx, s.DB, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, readFailed("get user", err)
	}
	p := &Profile{
		ID: u.ID, Role: u.Role, DisplayName: u.DisplayName(), Username: u.Username,
		Email: u.Email, Phone: u.Phone, Verification: u.Verification,
	}
	if u.Role == domain.RoleProvider {
		if p.Categories, err = s.categories(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Get returns the public profile of id. Contact details are included when
// the viewer and id are the two parties of an awarded job.
func (s *ProfileService) Get(ctx context.Context, viewer Session, id string) (*Profile, error) {
	if id == viewer.UserID {
		return s.Me(ctx, viewer)
	}
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, readFailed("get user", err)
	}
	p := &Profile{
		ID: u.ID, Role: u.Role, DisplayName: u.DisplayName(), Username: u.Username,
		Verification: u.Verification,
	}
	if u.Role == domain.RoleProvider {
		if p.Categories, err = s.categories(ctx, u.ID); err != nil {
			return nil, err
		}
		avg, n, err := repo.ProviderRating(ctx, s.DB, u.ID)
		if err == nil {
			p.Rating = &ProviderRating{ProviderID: u.ID, Average: avg, Count: n, Available: true}
		}
	}

	linked, err := s.awarded(ctx, viewer.UserID, u.ID)
	if err != nil {
		return nil, readFailed("awarded jobs", err)
	}
	if linked {
		p.Phone = u.Phone
		p.Email = u.Email
	}
	return p, nil
}

// awarded reports whether a and b are customer and provider of an accepted bid.
func (s *ProfileService) awarded(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&domain.Bid{}).
		Where("status = ? AND ((customer_id = ? AND provider_id = ?) OR (customer_id = ? AND provider_id = ?))",
			domain.BidAccepted, a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

func (s *ProfileService) categories(ctx context.Context, providerID string) ([]string, error) {
	cats, err := repo.ListProviderCategories(ctx, s.DB, providerID)
	if err != nil {
		return nil, readFailed("list categories", err)
	}
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.Category)
	}
	return out, nil
}

// SubmitVerification records the categories a provider wants to work in and
// the documents submitted for them. Each selected category must be in the
// catalog and every non-optional document it lists must be present.
func (s *ProfileService) SubmitVerification(ctx context.Context, sess Session, docs map[string][]string) ([]domain.ProviderCategory, error) {
	if !sess.IsProvider() {
		return nil, ErrNotProvider
	}
	if len(docs) == 0 {
		return nil, invalid("categories", "select at least one category")
	}
	cat := s.Catalog
	if cat == nil {
		cat = catalog.Default()
	}

	rows := make([]domain.ProviderCategory, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		submitted := docs[name]
		canon, ok := cat.Canonical(name)
		if !ok {
			return nil, invalid("categories", "unknown service category "+strings.TrimSpace(name))
		}
		if _, dup := seen[canon]; dup {
			return nil, invalid("categories", "duplicate category "+canon)
		}
		seen[canon] = struct{}{}
		if missing := cat.MissingDocuments(canon, submitted); len(missing) > 0 {
			return nil, invalid("documents", canon+" requires "+strings.Join(missing, ", "))
		}
		rows = append(rows, domain.ProviderCategory{Category: canon, Documents: trimAll(submitted)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })

	if err := repo.ReplaceProviderCategories(ctx, s.DB, sess.UserID, rows); err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, writeFailed("submit verification", err)
	}
	return rows, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
