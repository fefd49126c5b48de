package handlers

import (
	"net/http"
	"testing"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/services"
)

func TestSignUpSignInSignOut(t *testing.T) {
	a := newApp(t)

	w := a.do(http.MethodPost, "/auth/signup", user{}, SignUpRequest{
		Role: "Customer", FirstName: "Sana", LastName: "Ahmed", Username: "sana",
		Phone: "03001234567", Email: "sana@example.pk", Password: "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}
	created := decode[SessionResponse](t, w)
	if created.Token == "" || created.Session.Role != domain.RoleCustomer || created.Session.DisplayName != "Sana Ahmed" {
		t.Fatalf("unexpected session: %+v", created)
	}

	// Same email again.
	w = a.do(http.MethodPost, "/auth/signup", user{}, SignUpRequest{
		Role: "customer", FirstName: "S", LastName: "A", Username: "s2",
		Phone: "03001234567", Email: "sana@example.pk", Password: "secret1",
	})
	expectError(t, w, http.StatusUnauthorized, ErrCodeAuthFailed)

	w = a.do(http.MethodPost, "/auth/signin", user{}, SignInRequest{Email: "sana@example.pk", Password: "wrong-pass"})
	expectError(t, w, http.StatusUnauthorized, ErrCodeAuthFailed)

	w = a.do(http.MethodPost, "/auth/signin", user{}, SignInRequest{Email: "sana@example.pk", Password: "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("signin: %d %s", w.Code, w.Body.String())
	}
	u := user{sess: created.Session, token: decode[SessionResponse](t, w).Token}

	w = a.do(http.MethodGet, "/me", u, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	if p := decode[services.Profile](t, w); p.ID != created.Session.UserID || p.Email != "sana@example.pk" {
		t.Fatalf("me profile: %+v", p)
	}

	if w = a.do(http.MethodPost, "/auth/signout", u, nil); w.Code != http.StatusNoContent {
		t.Fatalf("signout: %d %s", w.Code, w.Body.String())
	}
	// Every token issued before sign-out is revoked.
	expectError(t, a.do(http.MethodGet, "/me", u, nil), http.StatusUnauthorized, ErrCodeAuthFailed)
	expectError(t, a.do(http.MethodGet, "/me", user{token: created.Token}, nil), http.StatusUnauthorized, ErrCodeAuthFailed)
}

func TestSignUp_Validation(t *testing.T) {
	a := newApp(t)

	cases := []struct {
		name   string
		req    SignUpRequest
		status int
		code   string
	}{
		{"bad role", SignUpRequest{Role: "admin", FirstName: "A", LastName: "B", Username: "ab", Phone: "03001234567", Email: "a@b.pk", Password: "secret1"}, 400, ErrCodeValidation},
		{"missing last name", SignUpRequest{Role: "customer", FirstName: "A", Username: "ab", Phone: "03001234567", Email: "a@b.pk", Password: "secret1"}, 400, ErrCodeValidation},
		{"bad email", SignUpRequest{Role: "customer", FirstName: "A", LastName: "B", Username: "ab", Phone: "03001234567", Email: "not-an-email", Password: "secret1"}, 401, ErrCodeAuthFailed},
		{"short password", SignUpRequest{Role: "customer", FirstName: "A", LastName: "B", Username: "ab", Phone: "03001234567", Email: "a@b.pk", Password: "123"}, 401, ErrCodeAuthFailed},
		{"provider without cnic", SignUpRequest{Role: "provider", FirstName: "A", LastName: "B", Username: "ab", Phone: "03001234567", Email: "p@b.pk", Password: "secret1"}, 400, ErrCodeValidation},
		{"provider short phone", SignUpRequest{Role: "provider", FirstName: "A", LastName: "B", Username: "ab", Phone: "0300", Email: "p@b.pk", Password: "secret1", CNIC: "3520212345671"}, 400, ErrCodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, a.do(http.MethodPost, "/auth/signup", user{}, tc.req), tc.status, tc.code)
		})
	}

	w := a.do(http.MethodPost, "/auth/signup", user{}, "not an object")
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	a := newApp(t)

	expectError(t, a.do(http.MethodGet, "/me", user{}, nil), http.StatusUnauthorized, ErrCodeAuthFailed)
	expectError(t, a.do(http.MethodGet, "/me", user{token: "garbage"}, nil), http.StatusUnauthorized, ErrCodeAuthFailed)

	// Public route stays open.
	if w := a.do(http.MethodGet, "/categories", user{}, nil); w.Code != http.StatusOK {
		t.Fatalf("categories: %d", w.Code)
	}
}

func TestProfiles(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	provider := a.signUp(domain.RoleProvider, "Bilal")

	// Contact details stay hidden until a bid between them is accepted.
	w := a.do(http.MethodGet, "/users/"+provider.sess.UserID, customer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}
	if p := decode[services.Profile](t, w); p.Phone != "" || p.Email != "" {
		t.Fatalf("contact leaked: %+v", p)
	}

	a.awarded(customer, provider, "Fix sink")
	w = a.do(http.MethodGet, "/users/"+provider.sess.UserID, customer, nil)
	if p := decode[services.Profile](t, w); p.Phone != "03001234567" {
		t.Fatalf("contact not shared after award: %+v", p)
	}

	expectError(t, a.do(http.MethodGet, "/users/nope", customer, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestSubmitVerification(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	provider := a.signUp(domain.RoleProvider, "Bilal")

	body := VerificationRequest{Categories: map[string][]string{"plumber": {"CNIC Front"}}}
	expectError(t, a.do(http.MethodPost, "/me/verification", customer, body), http.StatusForbidden, ErrCodeForbidden)

	w := a.do(http.MethodPost, "/me/verification", provider, body)
	if w.Code != http.StatusOK {
		t.Fatalf("verification: %d %s", w.Code, w.Body.String())
	}
	got := decode[VerificationResponse](t, w)
	if len(got.Categories) != 1 || got.Categories[0].Category != "Plumber" {
		t.Fatalf("categories: %+v", got.Categories)
	}

	w = a.do(http.MethodPost, "/me/verification", provider, VerificationRequest{Categories: map[string][]string{"Mechanic": nil}})
	expectError(t, w, http.StatusBadRequest, ErrCodeValidation)

	w = a.do(http.MethodGet, "/me", provider, nil)
	if p := decode[services.Profile](t, w); len(p.Categories) != 1 || p.Categories[0] != "Plumber" {
		t.Fatalf("me categories: %+v", p.Categories)
	}
}
