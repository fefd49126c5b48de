// Identity HTTP handlers.
//
//   - POST /auth/signup   (customer or provider account)
//   - POST /auth/signin
//   - POST /auth/signout  (revokes every outstanding token)
//   - GET  /me            (own profile)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/services"
)

// SignUpRequest is the sign-up form. CNIC is required for providers only.
type SignUpRequest struct {
	Role      string `json:"role"       example:"customer" enums:"customer,provider"`
	FirstName string `json:"first_name" example:"Sana"`
	LastName  string `json:"last_name"  example:"Ahmed"`
	Username  string `json:"username"   example:"sana"`
	Phone     string `json:"phone"      example:"03001234567"`
	Email     string `json:"email"      example:"sana@example.pk"`
	Password  string `json:"password"   example:"secret1"`
	CNIC      string `json:"cnic"       example:"3520212345671"`
}

// SignInRequest is the sign-in form.
type SignInRequest struct {
	Email    string `json:"email"    example:"sana@example.pk"`
	Password string `json:"password" example:"secret1"`
}

// SessionResponse returns the session and its bearer token.
type SessionResponse struct {
	Session services.Session `json:"session"`
	Token   string           `json:"token"`
}

// SignUp godoc
// @ID          signUp
// @Summary     Create an account
// @Description Registers a customer or a service provider and signs them in.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignUpRequest  true  "Sign-up form"
// @Success     201   {object}  handlers.SessionResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Email already in use"
// @Failure     500   {object}  handlers.ErrorResponse  "Write failed"
// @Router      /auth/signup [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sess, token, err := h.auth.SignUp(c.Request.Context(), services.SignUpInput{
		Role:      domain.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Phone:     req.Phone,
		Email:     req.Email,
		Password:  req.Password,
		CNIC:      req.CNIC,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, SessionResponse{Session: sess, Token: token})
}

// SignIn godoc
// @ID          signIn
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignInRequest  true  "Credentials"
// @Success     200   {object}  handlers.SessionResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/signin [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sess, token, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess, Token: token})
}

// SignOut godoc
// @ID          signOut
// @Summary     Sign out everywhere
// @Description Revokes every token issued to the caller and closes their live streams.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/signout [post]
func (h *Handlers) SignOut(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), sess); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Me godoc
// @ID          getMe
// @Summary     Own profile
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Profile
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	p, err := h.profiles.Me(c.Request.Context(), sess)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
