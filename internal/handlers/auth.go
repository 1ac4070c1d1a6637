package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/gridwatch/healthindexer/internal/auth"
	"github.com/gridwatch/healthindexer/internal/services"
	"github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/response"
)

// AuthHandler manages the account flows (signup/login/logout, password reset,
// email verification and the identity probe).
type AuthHandler struct {
	accounts     *services.AccountService
	jwt          *iauth.JWTService
	secureCookie bool
}

func NewAuthHandler(accounts *services.AccountService, jwt *iauth.JWTService, secureCookie bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, jwt: jwt, secureCookie: secureCookie}
}

type signupRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.accounts.Signup(requestContext(c), services.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message": "Account created. Please check your email to verify your address.",
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, user, err := h.accounts.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookie(c, token, h.jwt.SessionTTL())

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":         user.ID,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"email":      user.Email,
			"role":       user.Role,
		},
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	// Sessions are stateless; logout just clears the browser cookie.
	h.setSessionCookie(c, "", -time.Second)
	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ForgotPassword(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	// Identical response whether or not the address is registered.
	response.Success(c, http.StatusOK, gin.H{
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(requestContext(c), req.Token, req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password updated. You can now log in."})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

// POST /api/auth/verify-email
// The token may arrive in the JSON body or as a query parameter, depending on
// whether the frontend or the emailed link drives the call.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		var req verifyEmailRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = strings.TrimSpace(req.Token)
		}
	}
	if token == "" {
		response.Error(c, errors.ErrInvalidActionToken)
		return
	}

	if err := h.accounts.VerifyEmail(requestContext(c), token); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Email verified. You can now log in."})
}

// GET /api/auth/identity
// Resolves the caller's identity from the session token. An absent or invalid
// token is not an error: the caller is simply a guest.
func (h *AuthHandler) Identity(c *gin.Context) {
	token, ok := iauth.TokenFromRequest(c.Request)
	if !ok {
		response.Success(c, http.StatusOK, gin.H{"role": "guest"})
		return
	}

	claims, err := h.jwt.VerifySession(token)
	if err != nil {
		response.Success(c, http.StatusOK, gin.H{"role": "guest"})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"role":  claims.Role,
		"email": claims.Email,
	})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, maxAge time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     iauth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
