// Package services – BidService
//
// This file implements the Bid Ledger. Providers place priced bids on open
// jobs; the posting customer reviews them and accepts exactly one.
//
// Acceptance is a single transaction of two conditional updates: the job moves
// open -> bidding_closed (recording the accepted bid) and the bid moves
// pending -> accepted (stamping AcceptedAt with server time). Whichever
// accept commits first wins; any later accept of a different bid on the same
// job fails with ErrJobAlreadyAwarded and changes nothing.
package services

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
)

// DefaultMinBidAmount is the smallest bid accepted when none is configured.
const DefaultMinBidAmount = 100

// BidRepo defines the repository contract required by BidService.
type BidRepo interface {
	GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error)
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
	CreateBid(ctx context.Context, db *gorm.DB, bid *domain.Bid) error
	GetBid(ctx context.Context, db *gorm.DB, id string) (*domain.Bid, error)
	ListBidsForJob(ctx context.Context, db *gorm.DB, jobID string) ([]domain.Bid, error)
	ListBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error)
	ListAcceptedBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error)
	CloseBidding(ctx context.Context, db *gorm.DB, jobID, bidID string) (bool, error)
	AcceptBid(ctx context.Context, db *gorm.DB, bidID string, at time.Time) (bool, error)
	ProviderRating(ctx context.Context, db *gorm.DB, providerID string) (float64, int64, error)
}

// BidService provides the bid ledger operations.
type BidService struct {
	DB     *gorm.DB
	Repo   BidRepo
	Events Publisher
	Clock  Clock

	MinAmount    float64
	MaxNoteRunes int
	// RatingConcurrency bounds parallel rating lookups.
	RatingConcurrency int
}

// NewBidService constructs a BidService with the given minimum bid amount.
func NewBidService(db *gorm.DB, r BidRepo, minAmount float64, pub Publisher) *BidService {
	if minAmount <= 0 {
		minAmount = DefaultMinBidAmount
	}
	return &BidService{
		DB:                db,
		Repo:              r,
		Events:            pub,
		Clock:             SystemClock,
		MinAmount:         minAmount,
		MaxNoteRunes:      1000,
		RatingConcurrency: 8,
	}
}

// ParseAmount validates a typed bid amount. It must parse as a finite number
// no smaller than minimum.
func ParseAmount(text string, minimum float64) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, invalid("amount", "is required")
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid("amount", "must be a number")
	}
	if v < minimum {
		return 0, invalid("amount", "must be at least "+strconv.FormatFloat(minimum, 'f', -1, 64))
	}
	return v, nil
}

// PlaceBid records a pending bid by the session's provider on an open job.
// Input validation happens before any store access.
func (s *BidService) PlaceBid(ctx context.Context, sess Session, jobID, amount, notes string) (*domain.Bid, error) {
	tr := otel.Tracer("services/BidService")
	ctx, span := tr.Start(ctx, "PlaceBid",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("user.id", sess.UserID),
		),
	)
	defer span.End()

	if !sess.IsProvider() {
		return nil, ErrNotProvider
	}
	v, err := ParseAmount(amount, s.MinAmount)
	if err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if s.MaxNoteRunes > 0 && utf8.RuneCountInString(notes) > s.MaxNoteRunes {
		return nil, invalid("notes", "is too long")
	}

	job, err := s.Repo.GetJob(ctx, s.DB, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, readFailed("get job", err)
	}
	if job.State != domain.JobOpen {
		return nil, ErrJobNotOpen
	}
	provider, err := s.Repo.GetUser(ctx, s.DB, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, readFailed("get provider", err)
	}

	bid := &domain.Bid{
		JobID:         job.ID,
		JobTitle:      job.Title,
		JobCategory:   job.Category,
		JobLocation:   job.Location,
		CustomerID:    job.CustomerID,
		CustomerName:  job.CustomerName,
		ProviderID:    provider.ID,
		ProviderName:  provider.DisplayName(),
		ProviderPhone: provider.Phone,
		Amount:        v,
		Notes:         notes,
	}
	if err := s.Repo.CreateBid(ctx, s.DB, bid); err != nil {
		return nil, writeFailed("create bid", err)
	}

	publish(s.Events, events.Event{
		Topic:    events.TopicBidPlaced,
		Change:   events.Added,
		Key:      bid.ID,
		Data:     bid,
		Audience: []string{bid.CustomerID, bid.ProviderID},
	})
	return bid, nil
}

// AcceptBid awards the job to bidID. Only the job's customer may accept.
// Accepting the already-accepted bid again returns it unchanged.
func (s *BidService) AcceptBid(ctx context.Context, sess Session, bidID string) (*domain.Bid, error) {
	tr := otel.Tracer("services/BidService")
	ctx, span := tr.Start(ctx, "AcceptBid",
		trace.WithAttributes(
			attribute.String("bid.id", bidID),
			attribute.String("user.id", sess.UserID),
		),
	)
	defer span.End()

	if !sess.IsCustomer() {
		return nil, ErrNotCustomer
	}

	var (
		bid     *domain.Bid
		job     *domain.Job
		changed bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bid, err = s.Repo.GetBid(ctx, tx, bidID)
		if err != nil {
			if isNotFound(err) {
				return ErrBidNotFound
			}
			return err
		}
		job, err = s.Repo.GetJob(ctx, tx, bid.JobID)
		if err != nil {
			if isNotFound(err) {
				return ErrJobNotFound
			}
			return err
		}
		if job.CustomerID != sess.UserID {
			return ErrNotJobOwner
		}
		if bid.Status == domain.BidAccepted {
			return nil
		}

		closed, err := s.Repo.CloseBidding(ctx, tx, job.ID, bid.ID)
		if err != nil {
			return err
		}
		if !closed {
			return ErrJobAlreadyAwarded
		}
		at := clockOrSystem(s.Clock).Now().UTC()
		ok, err := s.Repo.AcceptBid(ctx, tx, bid.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return ErrJobAlreadyAwarded
		}

		bid.Status = domain.BidAccepted
		bid.AcceptedAt = &at
		job.State = domain.JobBiddingClosed
		job.AcceptedBidID = &bid.ID
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, writeFailed("accept bid", err)
	}

	if changed {
		publish(s.Events, events.Event{
			Topic:    events.TopicBidAccepted,
			Change:   events.Modified,
			Key:      bid.ID,
			Data:     bid,
			Audience: []string{bid.ProviderID, bid.CustomerID},
		})
		publish(s.Events, events.Event{
			Topic:    events.TopicJobUpdated,
			Change:   events.Removed,
			Key:      job.ID,
			Data:     job,
			Audience: []string{job.CustomerID},
			Category: job.Category,
		})
	}
	return bid, nil
}

// BidsForJob returns the job's bids in arrival order. Only the job's
// customer may read them.
func (s *BidService) BidsForJob(ctx context.Context, sess Session, jobID string) ([]domain.Bid, error) {
	tr := otel.Tracer("services/BidService")
	ctx, span := tr.Start(ctx, "BidsForJob", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	job, err := s.Repo.GetJob(ctx, s.DB, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, readFailed("get job", err)
	}
	if job.CustomerID != sess.UserID {
		return nil, ErrNotJobOwner
	}
	bids, err := s.Repo.ListBidsForJob(ctx, s.DB, jobID)
	if err != nil {
		return nil, readFailed("list bids", err)
	}
	return bids, nil
}

// BidsForProvider returns the session provider's own bids, newest first.
func (s *BidService) BidsForProvider(ctx context.Context, sess Session) ([]domain.Bid, error) {
	if !sess.IsProvider() {
		return nil, ErrNotProvider
	}
	bids, err := s.Repo.ListBidsForProvider(ctx, s.DB, sess.UserID)
	if err != nil {
		return nil, readFailed("list bids", err)
	}
	return bids, nil
}

// AcceptedBidsForProvider returns the provider's accepted bids. The live
// stream replays them through an AcceptanceFilter on connect.
func (s *BidService) AcceptedBidsForProvider(ctx context.Context, providerID string) ([]domain.Bid, error) {
	bids, err := s.Repo.ListAcceptedBidsForProvider(ctx, s.DB, providerID)
	if err != nil {
		return nil, readFailed("list accepted bids", err)
	}
	return bids, nil
}

// ProviderRating is one provider's aggregate rating. Available is false when
// the lookup failed and the zero values are placeholders.
type ProviderRating struct {
	ProviderID string  `json:"provider_id"`
	Average    float64 `json:"average"`
	Count      int64   `json:"count"`
	Available  bool    `json:"available"`
}

// RatingsForProviders fetches ratings for ids in parallel. A failed lookup
// yields a placeholder rather than failing the batch. Results follow the
// order of first appearance in ids; duplicates are collapsed.
func (s *BidService) RatingsForProviders(ctx context.Context, ids []string) []ProviderRating {
	tr := otel.Tracer("services/BidService")
	ctx, span := tr.Start(ctx, "RatingsForProviders", trace.WithAttributes(attribute.Int("providers", len(ids))))
	defer span.End()

	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	out := make([]ProviderRating, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	if s.RatingConcurrency > 0 {
		g.SetLimit(s.RatingConcurrency)
	}
	for i, id := range uniq {
		out[i] = ProviderRating{ProviderID: id}
		g.Go(func() error {
			avg, n, err := s.Repo.ProviderRating(gctx, s.DB, id)
			if err != nil {
				return nil // placeholder stays
			}
			out[i] = ProviderRating{ProviderID: id, Average: avg, Count: n, Available: true}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AcceptanceFilter decides which bid acceptances a provider is notified of.
//
// Replayed acceptances (Added) notify only when AcceptedAt falls inside the
// freshness window; live flips (Modified) always notify. Each bid notifies at
// most once per filter. One filter belongs to one subscription.
type AcceptanceFilter struct {
	Window time.Duration
	Clock  Clock

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewAcceptanceFilter returns a filter with the given freshness window.
func NewAcceptanceFilter(window time.Duration, clock Clock) *AcceptanceFilter {
	return &AcceptanceFilter{Window: window, Clock: clockOrSystem(clock), seen: make(map[string]struct{})}
}

// Notify reports whether change on b should surface an acceptance
// notification, and records it when it does.
func (f *AcceptanceFilter) Notify(change events.Change, b domain.Bid) bool {
	if b.Status != domain.BidAccepted {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[b.ID]; dup {
		return false
	}

	switch change {
	case events.Modified:
	case events.Added:
		if b.AcceptedAt == nil {
			return false
		}
		if clockOrSystem(f.Clock).Now().Sub(*b.AcceptedAt) >= f.Window {
			return false
		}
	default:
		return false
	}
	if f.seen == nil {
		f.seen = make(map[string]struct{})
	}
	f.seen[b.ID] = struct{}{}
	return true
}
