// Package services – CompletionService
//
// This file implements the Job Status Coordinator. After a bid is accepted,
// the job's customer and its provider each confirm the work is done. The
// record holds one flag per party and each party only ever writes its own
// flag, so confirmations from both sides merge in any order.
//
//	open --(one party)--> half_confirmed --(other party)--> completed
//
// Reaching completed also moves the job from bidding_closed to completed in
// the same transaction, and job.completed is published exactly once.
package services

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

// CompletionState is the derived state of a completion record.
type CompletionState string

const (
	StateOpen          CompletionState = "open"
	StateHalfConfirmed CompletionState = "half_confirmed"
	StateCompleted     CompletionState = "completed"
)

// State derives the completion state from the two flags.
func State(customerConfirmed, providerConfirmed bool) CompletionState {
	switch {
	case customerConfirmed && providerConfirmed:
		return StateCompleted
	case customerConfirmed || providerConfirmed:
		return StateHalfConfirmed
	default:
		return StateOpen
	}
}

// StatusView is the completion status of one job as seen by a participant.
// PaymentReminder is filled for the customer once the job is completed.
type StatusView struct {
	JobID             string          `json:"job_id"`
	Key               string          `json:"key"`
	State             CompletionState `json:"state"`
	CustomerConfirmed bool            `json:"customer_confirmed"`
	ProviderConfirmed bool            `json:"provider_confirmed"`
	PaymentReminder   string          `json:"payment_reminder,omitempty"`
}

// CompletionService coordinates two-party completion.
type CompletionService struct {
	DB     *gorm.DB
	Events Publisher
}

// participants loads the job and its accepted bid and resolves the caller's
// role on it.
func participants(ctx context.Context, db *gorm.DB, userID, jobID string) (*domain.Job, *domain.Bid, domain.Role, error) {
	job, err := repo.GetJob(ctx, db, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, "", ErrJobNotFound
		}
		return nil, nil, "", err
	}
	if job.AcceptedBidID == nil {
		if userID != job.CustomerID {
			return nil, nil, "", ErrNotParticipant
		}
		return nil, nil, "", ErrNoAcceptedBid
	}
	bid, err := repo.GetBid(ctx, db, *job.AcceptedBidID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, "", ErrNoAcceptedBid
		}
		return nil, nil, "", err
	}
	switch userID {
	case job.CustomerID:
		return job, bid, domain.RoleCustomer, nil
	case bid.ProviderID:
		return job, bid, domain.RoleProvider, nil
	default:
		return nil, nil, "", ErrNotParticipant
	}
}

func viewOf(job *domain.Job, bid *domain.Bid, st *domain.JobStatus, role domain.Role) StatusView {
	v := StatusView{
		JobID: job.ID,
		Key:   SessionKey(job.CustomerID, bid.ProviderID, job.Title),
		State: StateOpen,
	}
	if st != nil {
		v.CustomerConfirmed = st.CustomerConfirmed
		v.ProviderConfirmed = st.ProviderConfirmed
		v.State = State(st.CustomerConfirmed, st.ProviderConfirmed)
	}
	if v.State == StateCompleted && role == domain.RoleCustomer {
		v.PaymentReminder = PaymentReminder(bid.Amount)
	}
	return v
}

// PaymentReminder is the message shown to the customer once both parties
// confirmed.
func PaymentReminder(amount float64) string {
	return "Please pay Rs " + strconv.FormatFloat(amount, 'f', -1, 64)
}

// ConfirmDone sets the caller's confirmation flag on the job's completion
// record, creating the record on first use. Repeating a confirmation is a
// no-op.
func (s *CompletionService) ConfirmDone(ctx context.Context, sess Session, jobID string) (StatusView, error) {
	tr := otel.Tracer("services/CompletionService")
	ctx, span := tr.Start(ctx, "ConfirmDone",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("user.id", sess.UserID),
		),
	)
	defer span.End()

	var (
		job          *domain.Job
		bid          *domain.Bid
		view         StatusView
		changed      bool
		created      bool
		completedNow bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the job row so both parties' transactions run one after the
		// other and the second sees the first's flag.
		if err := repo.TouchJob(ctx, tx, jobID); err != nil {
			if isNotFound(err) {
				return ErrJobNotFound
			}
			return err
		}
		var (
			role domain.Role
			err  error
		)
		job, bid, role, err = participants(ctx, tx, sess.UserID, jobID)
		if err != nil {
			return err
		}
		key := SessionKey(job.CustomerID, bid.ProviderID, job.Title)

		prev, err := repo.GetJobStatus(ctx, tx, job.ID)
		switch {
		case isNotFound(err):
			prev, created = nil, true
		case err != nil:
			return err
		}
		already := prev != nil &&
			((role == domain.RoleCustomer && prev.CustomerConfirmed) ||
				(role == domain.RoleProvider && prev.ProviderConfirmed))
		if !already {
			if err := repo.ConfirmJobStatus(ctx, tx, job.ID, key, role); err != nil {
				return err
			}
			changed = true
		}

		st, err := repo.GetJobStatus(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if st.CustomerConfirmed && st.ProviderConfirmed && job.State == domain.JobBiddingClosed {
			ok, err := repo.MarkCompleted(ctx, tx, job.ID)
			if err != nil {
				return err
			}
			if ok {
				completedNow = true
				job.State = domain.JobCompleted
			}
		}
		view = viewOf(job, bid, st, role)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return StatusView{}, writeFailed("confirm done", err)
	}

	audience := []string{job.CustomerID, bid.ProviderID}
	if changed {
		change := events.Modified
		if created {
			change = events.Added
		}
		shared := view
		shared.PaymentReminder = ""
		publish(s.Events, events.Event{
			Topic:    events.TopicJobStatusChanged,
			Change:   change,
			Key:      job.ID,
			Data:     shared,
			Audience: audience,
		})
	}
	if completedNow {
		publish(s.Events, events.Event{
			Topic:    events.TopicJobCompleted,
			Change:   events.Modified,
			Key:      job.ID,
			Data:     viewOf(job, bid, &domain.JobStatus{CustomerConfirmed: true, ProviderConfirmed: true}, ""),
			Audience: audience,
		})
	}
	return view, nil
}

// Status returns the job's completion status. An absent record reads as
// both flags false.
func (s *CompletionService) Status(ctx context.Context, sess Session, jobID string) (StatusView, error) {
	tr := otel.Tracer("services/CompletionService")
	ctx, span := tr.Start(ctx, "Status", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	db := s.DB.WithContext(ctx)
	job, bid, role, err := participants(ctx, db, sess.UserID, jobID)
	if err != nil {
		return StatusView{}, readFailed("job status", err)
	}
	st, err := repo.GetJobStatus(ctx, db, job.ID)
	if err != nil && !isNotFound(err) {
		return StatusView{}, readFailed("job status", err)
	}
	if isNotFound(err) {
		st = nil
	}
	return viewOf(job, bid, st, role), nil
}

// CompletedFor returns the status of every completed job the session user
// took part in, as customer or as awarded provider. The stream replays these
// on connect so a party offline at completion still sees it.
func (s *CompletionService) CompletedFor(ctx context.Context, sess Session) ([]StatusView, error) {
	tr := otel.Tracer("services/CompletionService")
	ctx, span := tr.Start(ctx, "CompletedFor", trace.WithAttributes(attribute.String("user.id", sess.UserID)))
	defer span.End()

	db := s.DB.WithContext(ctx)
	jobs, err := repo.ListCompletedJobsFor(ctx, db, sess.UserID)
	if err != nil {
		return nil, readFailed("completed jobs", err)
	}
	out := make([]StatusView, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.AcceptedBidID == nil {
			continue
		}
		bid, err := repo.GetBid(ctx, db, *job.AcceptedBidID)
		if err != nil {
			return nil, readFailed("accepted bid", err)
		}
		role := domain.RoleProvider
		if job.CustomerID == sess.UserID {
			role = domain.RoleCustomer
		}
		st := &domain.JobStatus{CustomerConfirmed: true, ProviderConfirmed: true}
		out = append(out, viewOf(job, bid, st, role))
	}
	return out, nil
}

// CompletionLatch fires once per job the first time a status snapshot reads
// completed, however many completed snapshots follow. One latch belongs to
// one subscriber.
type CompletionLatch struct {
	mu    sync.Mutex
	fired map[string]struct{}
}

// Observe reports whether the snapshot (jobID, state) is the first completed
// snapshot seen for jobID.
func (l *CompletionLatch) Observe(jobID string, state CompletionState) bool {
	if state != StateCompleted {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fired == nil {
		l.fired = make(map[string]struct{})
	}
	if _, done := l.fired[jobID]; done {
		return false
	}
	l.fired[jobID] = struct{}{}
	return true
}
