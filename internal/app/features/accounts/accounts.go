// Package accounts handles registration, login and the current user.
//
// Successful register and login responses carry a bearer token issued by
// auth.TokenManager; every other API route expects it in the Authorization
// header.
package accounts

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Email: the lowercase address a user logs in with

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/authutil"
	"github.com/dalemusser/stratadrive/internal/app/system/inputval"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DefaultSignupCredits is granted to new accounts when none is configured.
const DefaultSignupCredits int64 = 100

// Handler provides account handlers.
type Handler struct {
	users          *userstore.Store
	tm             *auth.TokenManager
	auditLogger    *auditlog.Logger
	rateLimitStore *ratelimit.Store // nil if rate limiting disabled
	errLog         *errorsfeature.ErrorLogger
	logger         *zap.Logger
	signupCredits  int64
}

// NewHandler creates a new accounts Handler.
// auditLogger and rateLimitStore may be nil. A negative signupCredits is
// treated as DefaultSignupCredits.
func NewHandler(
	db *mongo.Database,
	tm *auth.TokenManager,
	auditLogger *auditlog.Logger,
	rateLimitStore *ratelimit.Store,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
	signupCredits int64,
) *Handler {
	if signupCredits < 0 {
		signupCredits = DefaultSignupCredits
	}
	return &Handler{
		users:          userstore.New(db),
		tm:             tm,
		auditLogger:    auditLogger,
		rateLimitStore: rateLimitStore,
		errLog:         errLog,
		logger:         logger,
		signupCredits:  signupCredits,
	}
}

// Routes returns a chi.Router with account routes mounted.
//
// When mounted at /api/accounts:
//   - POST /register
//   - POST /login
//   - GET  /me
//   - POST /me/password
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/register", h.register)
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.tm.RequirePrincipal)
		r.Get("/me", h.me)
		r.Post("/me/password", h.changePassword)
	})

	return r
}

type registerRequest struct {
	Username string `json:"username" validate:"required,username,max=50" label:"Username"`
	Email    string `json:"email" validate:"required,email,max=254" label:"Email"`
	Password string `json:"password" validate:"required" label:"Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required" label:"Email"`
	Password string `json:"password" validate:"required" label:"Password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required" label:"Current password"`
	NewPassword     string `json:"new_password" validate:"required" label:"New password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	req.Username = normalize.Name(req.Username)
	req.Email = normalize.Email(req.Email)

	if res := inputval.Validate(req); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	if err := authutil.ValidatePassword(req.Password); err != nil {
		jsonutil.ValidationError(w, map[string]string{
			"password": err.Error() + " (" + authutil.PasswordRules() + ")",
		})
		return
	}

	hash, err := authutil.HashPassword(req.Password)
	if err != nil {
		h.errLog.Log(r, "failed to hash password", err)
		jsonutil.InternalError(w, "internal error")
		return
	}

	u, err := h.users.Create(r.Context(), models.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		AvatarInitials: Initials(req.Username),
		Credits:        h.signupCredits,
		Tier:           models.TierFree,
	})
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		jsonutil.Error(w, http.StatusConflict, "email_taken", err.Error())
		return
	}
	if err != nil {
		h.errLog.Log(r, "failed to create user", err)
		jsonutil.InternalError(w, "internal error")
		return
	}

	h.auditLogger.Registered(r, u.ID, u.Email)
	h.respondWithToken(w, r, http.StatusCreated, &u)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if res := inputval.Validate(req); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	email := normalize.Email(req.Email)

	if h.rateLimitStore != nil {
		if until, locked := h.rateLimitStore.LockedUntil(r.Context(), email); locked {
			h.auditLogger.LoginLockedOut(r, email)
			tooManyAttempts(w, until)
			return
		}
	}

	u, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			h.errLog.Log(r, "failed to load user", err)
			jsonutil.InternalError(w, "internal error")
			return
		}
		authutil.BurnCompare(req.Password)
		h.auditLogger.LoginFailedUserNotFound(r, email)
		h.loginFailed(w, r, email)
		return
	}
	if !authutil.CheckPassword(req.Password, u.PasswordHash) {
		h.auditLogger.LoginFailedWrongPassword(r, u.ID)
		h.loginFailed(w, r, email)
		return
	}

	if h.rateLimitStore != nil {
		if err := h.rateLimitStore.Clear(r.Context(), email); err != nil {
			h.logger.Warn("failed to clear login attempts", zap.Error(err))
		}
	}
	h.auditLogger.LoginSuccess(r, u.ID)
	h.respondWithToken(w, r, http.StatusOK, u)
}

// loginFailed counts the failure and answers 401, or 429 when this failure
// triggered a lockout.
func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, email string) {
	if h.rateLimitStore != nil {
		until, locked, err := h.rateLimitStore.RecordFailure(r.Context(), email)
		if err != nil {
			h.logger.Warn("failed to record login attempt", zap.Error(err))
		} else if locked {
			tooManyAttempts(w, until)
			return
		}
	}
	jsonutil.Unauthorized(w, "invalid credentials")
}

func tooManyAttempts(w http.ResponseWriter, until time.Time) {
	secs := int(math.Ceil(time.Until(until).Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	jsonutil.TooManyRequests(w, "too many failed login attempts; try again later")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	u, err := h.users.GetByID(r.Context(), p.UserID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		jsonutil.Unauthorized(w, "user no longer exists")
		return
	}
	if err != nil {
		h.errLog.Log(r, "failed to load user", err)
		jsonutil.InternalError(w, "internal error")
		return
	}
	jsonutil.OK(w, u)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)

	var req changePasswordRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if res := inputval.Validate(req); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	u, err := h.users.GetByID(r.Context(), p.UserID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		jsonutil.Unauthorized(w, "user no longer exists")
		return
	}
	if err != nil {
		h.errLog.Log(r, "failed to load user", err)
		jsonutil.InternalError(w, "internal error")
		return
	}

	if !authutil.CheckPassword(req.CurrentPassword, u.PasswordHash) {
		jsonutil.ValidationError(w, map[string]string{"current_password": "Current password is incorrect."})
		return
	}
	if err := authutil.ValidatePassword(req.NewPassword); err != nil {
		jsonutil.ValidationError(w, map[string]string{"new_password": err.Error()})
		return
	}
	if req.NewPassword == req.CurrentPassword {
		jsonutil.ValidationError(w, map[string]string{"new_password": "New password cannot be the same as your current password."})
		return
	}

	hash, err := authutil.HashPassword(req.NewPassword)
	if err != nil {
		h.errLog.Log(r, "failed to hash password", err)
		jsonutil.InternalError(w, "internal error")
		return
	}
	if err := h.users.SetPasswordHash(r.Context(), u.ID, hash); err != nil {
		h.errLog.Log(r, "failed to update password", err)
		jsonutil.InternalError(w, "internal error")
		return
	}
	h.auditLogger.PasswordChanged(r, u.ID)
	jsonutil.NoContent(w)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *models.User) {
	token, exp, err := h.tm.Issue(u.ID)
	if err != nil {
		h.errLog.Log(r, "failed to issue token", err)
		jsonutil.InternalError(w, "internal error")
		return
	}
	jsonutil.JSON(w, status, AuthResponse{Token: token, ExpiresAt: exp, User: u})
}

// Initials returns the upper-cased first letter of the first two words of
// name, e.g. "Ada Lovelace" -> "AL".
func Initials(name string) string {
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		if i == 2 {
			break
		}
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
