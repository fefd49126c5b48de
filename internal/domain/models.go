// Package domain defines the persistence models for the marketplace: users,
// jobs, bids, completion records, chat messages, reviews and provider
// verifications. These types are mapped with GORM and form the core data
// layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Role distinguishes the two kinds of marketplace accounts.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleCustomer || r == RoleProvider }

// JobState is the explicit bidding lifecycle of a job.
//
//	open -> bidding_closed -> completed
//
// Transitions only move forward and are applied with conditional updates.
type JobState string

const (
	JobOpen          JobState = "open"
	JobBiddingClosed JobState = "bidding_closed"
	JobCompleted     JobState = "completed"
)

// BidStatus is one-directional: pending -> accepted.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
)

// Valid reports whether s is a known bid status.
func (s BidStatus) Valid() bool { return s == BidPending || s == BidAccepted }

// VerificationStatus tracks the (simulated) provider document review.
type VerificationStatus string

const (
	VerificationNone      VerificationStatus = "none"
	VerificationSubmitted VerificationStatus = "submitted"
)

// User is a customer or provider account.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Role: customer|provider.
//   - Email: unique login identifier, stored lower-cased.
//   - FirstName / LastName / Username / Phone: profile fields collected at signup.
//   - CNIC: 13-digit national identity number (providers only).
//   - PasswordHash: bcrypt hash, never serialized.
//   - TokenVersion: bumped on sign-out; tokens carrying an older version are rejected.
//   - Verification: provider document review state.
type User struct {
	ID           string             `json:"id"            gorm:"type:char(36);primaryKey"`
	Role         Role               `json:"role"          gorm:"type:varchar(16);not null;check:role IN ('customer','provider')"`
	Email        string             `json:"email"         gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Username     string             `json:"username"      gorm:"type:varchar(64);not null"`
	FirstName    string             `json:"first_name"    gorm:"type:varchar(100);not null"`
	LastName     string             `json:"last_name"     gorm:"type:varchar(100);not null"`
	Phone        string             `json:"phone"         gorm:"type:varchar(32);not null"`
	CNIC         string             `json:"cnic,omitempty" gorm:"type:varchar(13)"`
	PasswordHash string             `json:"-"             gorm:"type:varchar(100);not null"`
	TokenVersion int                `json:"-"             gorm:"not null;default:0"`
	Verification VerificationStatus `json:"verification"  gorm:"type:varchar(16);not null;default:'none'"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// DisplayName joins the name parts the way they are shown to counterparts.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// Job is a customer's posted service request.
//
// Customer identity is denormalized (email, display name) so provider-facing
// listings need no join. AcceptedBidID is set in the same transaction that
// moves State from open to bidding_closed.
type Job struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	CustomerID    string         `json:"customer_id"     gorm:"type:char(36);not null;index"`
	CustomerEmail string         `json:"customer_email"  gorm:"type:varchar(255);not null"`
	CustomerName  string         `json:"customer_name"   gorm:"type:varchar(255);not null"`
	Category      string         `json:"category"        gorm:"type:varchar(64);not null;index:idx_jobs_open,priority:2"`
	Title         string         `json:"title"           gorm:"type:varchar(255);not null"`
	Description   string         `json:"description"     gorm:"type:text;not null"`
	Location      string         `json:"location"        gorm:"type:varchar(255);not null"`
	Price         int64          `json:"price"           gorm:"not null"`
	State         JobState       `json:"state"           gorm:"type:varchar(16);not null;default:'open';index:idx_jobs_open,priority:1"`
	AcceptedBidID *string        `json:"accepted_bid_id,omitempty" gorm:"type:char(36)"`
	CreatedAt     time.Time      `json:"created_at"      gorm:"index:idx_jobs_open,priority:3"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string { return "jobs" }

// Bid is a provider's priced offer against a job.
//
// Job title, category and location plus both party names are denormalized at
// placement time. AcceptedAt is stamped by the server when the bid flips to
// accepted and is the reference point for acceptance freshness.
type Bid struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	JobID         string     `json:"job_id"         gorm:"type:char(36);not null;index:idx_bids_job,priority:1"`
	JobTitle      string     `json:"job_title"      gorm:"type:varchar(255);not null"`
	JobCategory   string     `json:"job_category"   gorm:"type:varchar(64);not null"`
	JobLocation   string     `json:"job_location"   gorm:"type:varchar(255);not null"`
	CustomerID    string     `json:"customer_id"    gorm:"type:char(36);not null"`
	CustomerName  string     `json:"customer_name"  gorm:"type:varchar(255);not null"`
	ProviderID    string     `json:"provider_id"    gorm:"type:char(36);not null;index"`
	ProviderName  string     `json:"provider_name"  gorm:"type:varchar(255);not null"`
	ProviderPhone string     `json:"provider_phone" gorm:"type:varchar(32)"`
	Amount        float64    `json:"amount"         gorm:"not null;check:amount >= 0"`
	Notes         string     `json:"notes"          gorm:"type:text"`
	Status        BidStatus  `json:"status"         gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted')"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"     gorm:"index:idx_bids_job,priority:2"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Job Job `json:"-" gorm:"foreignKey:JobID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Bid.
func (Bid) TableName() string { return "bids" }

// JobStatus is the two-party completion record for an accepted job, one per
// job. Key is the session key derived from (customer, provider, job title);
// it is informational only since two jobs may share it.
// Each party only ever writes its own flag.
type JobStatus struct {
	JobID             string    `json:"job_id"             gorm:"type:char(36);primaryKey"`
	Key               string    `json:"key"                gorm:"type:varchar(512);not null;index"`
	CustomerConfirmed bool      `json:"customer_confirmed" gorm:"not null;default:false"`
	ProviderConfirmed bool      `json:"provider_confirmed" gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for JobStatus.
func (JobStatus) TableName() string { return "job_statuses" }

// Message is one chat line between a job's customer and its accepted provider.
// ThreadID partitions messages per job so reads never scan the whole collection.
type Message struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ThreadID    string    `json:"thread_id"    gorm:"type:char(36);not null;index:idx_thread_msgs,priority:1"`
	SenderID    string    `json:"sender_id"    gorm:"type:char(36);not null;index:idx_pair_msgs,priority:1"`
	RecipientID string    `json:"recipient_id" gorm:"type:char(36);not null;index:idx_pair_msgs,priority:2"`
	Text        string    `json:"text"         gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_thread_msgs,priority:2"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Review is a customer's rating of the provider who completed a job.
// One review per job is enforced by a unique index.
type Review struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	JobID      string    `json:"job_id"      gorm:"type:char(36);not null;uniqueIndex:ux_reviews_job"`
	ProviderID string    `json:"provider_id" gorm:"type:char(36);not null;index"`
	CustomerID string    `json:"customer_id" gorm:"type:char(36);not null"`
	Rating     int       `json:"rating"      gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment    string    `json:"comment"     gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Job Job `json:"-" gorm:"foreignKey:JobID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// ProviderCategory records a service category a provider submitted documents
// for. Documents holds the submitted document names.
type ProviderCategory struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ProviderID string    `json:"provider_id" gorm:"type:char(36);not null;uniqueIndex:ux_provider_category,priority:1"`
	Category   string    `json:"category"    gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_category,priority:2;index"`
	Documents  []string  `json:"documents"   gorm:"serializer:json;type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ProviderCategory.
func (ProviderCategory) TableName() string { return "provider_categories" }
