// Package services – AuthService
//
// This file implements the identity provider: account sign-up for customers
// and providers, password sign-in, sign-out, and resolution of a bearer token
// back to a Session.
//
// Tokens are HS256 JWTs carrying the user's ID, email, display name, role and
// token version. Sign-out increments the stored version, so every token
// issued before it stops resolving. The change is also published on the
// change feed (auth.signed_out) so open streams for that user are closed.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

const (
	minPasswordRunes = 6
	providerPhoneLen = 11
	cnicLen          = 13
)

// SignUpInput carries the profile collected by the sign-up forms.
type SignUpInput struct {
	Role      domain.Role
	FirstName string
	LastName  string
	Username  string
	Phone     string
	Email     string
	Password  string
	CNIC      string
}

// AuthService issues and verifies session tokens.
type AuthService struct {
	DB     *gorm.DB
	Secret []byte
	TTL    time.Duration
	Events Publisher
	Clock  Clock

	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// NewAuthService constructs an AuthService signing with secret.
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration, pub Publisher) *AuthService {
	return &AuthService{DB: db, Secret: []byte(secret), TTL: ttl, Events: pub, Clock: SystemClock}
}

type tokenClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

// SignUp validates in, creates the account and returns a signed-in session.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (Session, string, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignUp",
		trace.WithAttributes(attribute.String("user.role", string(in.Role))),
	)
	defer span.End()

	u, err := s.validateSignUp(in)
	if err != nil {
		return Session{}, "", err
	}

	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return Session{}, "", &AuthError{Message: "could not secure password", Err: err}
	}
	u.PasswordHash = string(hash)

	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if isDuplicate(err) {
			return Session{}, "", authErr(ErrEmailTaken)
		}
		return Session{}, "", writeFailed("create user", err)
	}

	sess := sessionOf(u)
	tok, err := s.issue(u)
	return sess, tok, err
}

func (s *AuthService) validateSignUp(in SignUpInput) (*domain.User, error) {
	if !in.Role.Valid() {
		return nil, invalid("role", "must be customer or provider")
	}
	u := &domain.User{
		Role:      in.Role,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Username:  strings.TrimSpace(in.Username),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		CNIC:      strings.TrimSpace(in.CNIC),
	}
	required := []struct{ field, value string }{
		{"first_name", u.FirstName},
		{"last_name", u.LastName},
		{"username", u.Username},
		{"phone", u.Phone},
		{"email", u.Email},
		{"password", in.Password},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, invalid(r.field, "is required")
		}
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return nil, &AuthError{Message: "the email address is badly formatted", Err: err}
	}
	if utf8.RuneCountInString(in.Password) < minPasswordRunes {
		return nil, &AuthError{Message: "password should be at least 6 characters"}
	}
	if in.Role == domain.RoleProvider {
		if len(u.Phone) != providerPhoneLen || !allDigits(u.Phone) {
			return nil, invalid("phone", "must be 11 digits")
		}
		if len(u.CNIC) != cnicLen || !allDigits(u.CNIC) {
			return nil, invalid("cnic", "must be 13 digits")
		}
	} else {
		u.CNIC = ""
	}
	return u, nil
}

// SignIn checks the password and returns a fresh token. Any mismatch yields
// the same AuthError so account existence is not revealed.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (Session, string, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignIn")
	defer span.End()

	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, "", invalid("email", "email and password are required")
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if isNotFound(err) {
			return Session{}, "", authErr(ErrInvalidCredentials)
		}
		return Session{}, "", readFailed("get user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, "", authErr(ErrInvalidCredentials)
	}
	tok, err := s.issue(u)
	return sessionOf(u), tok, err
}

// SignOut revokes every token issued to the session's user so far.
func (s *AuthService) SignOut(ctx context.Context, sess Session) error {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignOut",
		trace.WithAttributes(attribute.String("user.id", sess.UserID)),
	)
	defer span.End()

	if _, err := repo.BumpTokenVersion(ctx, s.DB, sess.UserID); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return writeFailed("sign out", err)
	}
	publish(s.Events, events.Event{
		Topic:    events.TopicSignedOut,
		Change:   events.Modified,
		Key:      sess.UserID,
		Audience: []string{sess.UserID},
	})
	return nil
}

// CurrentUser resolves token to a Session. Expired, tampered or revoked
// tokens yield an AuthError.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (Session, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.Secret, nil
	}, jwt.WithTimeFunc(clockOrSystem(s.Clock).Now), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, &AuthError{Message: ErrTokenInvalid.Error(), Err: errors.Join(ErrTokenInvalid, err)}
	}

	u, err := repo.GetUser(ctx, s.DB, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			return Session{}, authErr(ErrTokenInvalid)
		}
		return Session{}, readFailed("get user", err)
	}
	if u.TokenVersion != claims.Version {
		return Session{}, authErr(ErrSignedOut)
	}
	return sessionOf(u), nil
}

func (s *AuthService) issue(u *domain.User) (string, error) {
	now := clockOrSystem(s.Clock).Now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	claims := tokenClaims{
		Email:   u.Email,
		Name:    u.DisplayName(),
		Role:    string(u.Role),
		Version: u.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", &AuthError{Message: "could not issue token", Err: err}
	}
	return signed, nil
}

func sessionOf(u *domain.User) Session {
	return Session{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName(), Role: u.Role}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
