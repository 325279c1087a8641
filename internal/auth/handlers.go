package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookie   = "session_id"
	SessionLifetime = 6 * time.Hour
	MinPasswordLen  = 8
)

type Options struct {
	// DemoLogin enables POST /demo-login: email + role, no password.
	DemoLogin bool
	// SecureCookies marks the session cookie Secure and SameSite=None for
	// cross-site front ends served over HTTPS.
	SecureCookies bool
}

type Handler struct {
	store storage.Store
	log   *zap.Logger
	opts  Options
	now   func() time.Time
}

func NewHandler(store storage.Store, log *zap.Logger, opts Options) *Handler {
	return &Handler{store: store, log: log, opts: opts, now: time.Now}
}

type registerRequest struct {
	Username     string  `json:"username"`
	Password     string  `json:"password"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Organization *string `json:"organization"`
	Phone        *string `json:"phone"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type demoLoginRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResponse is returned by every endpoint that opens a session.
type LoginResponse struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
}

// RegisterHandler creates a citizen account. Coordinator and agency
// accounts are provisioned with the admin CLI.
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	if err := CheckUsername(req.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Password) < MinPasswordLen {
		http.Error(w, fmt.Sprintf("Password must be at least %d characters", MinPasswordLen), http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		http.Error(w, "A valid email is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = localPart(req.Email)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error hashing password", http.StatusInternalServerError)
		return
	}

	user, err := h.store.CreateUser(r.Context(), models.User{
		Username:       req.Username,
		HashedPassword: string(hashed),
		Email:          req.Email,
		Role:           models.RoleCitizen,
		Name:           req.Name,
		Organization:   req.Organization,
		Phone:          req.Phone,
	})
	if errors.Is(err, storage.ErrConflict) {
		http.Error(w, "Username or email already taken", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("[auth] register failed", zap.Error(err))
		http.Error(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid Data", http.StatusBadRequest)
		return
	}

	// The login form sends either the username or the email. Anything with
	// an @ is an email first.
	var (
		user models.User
		err  error
	)
	if strings.Contains(req.Username, "@") {
		user, err = h.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Username)))
	}
	if !strings.Contains(req.Username, "@") || errors.Is(err, storage.ErrNotFound) {
		user, err = h.store.GetUserByUsername(r.Context(), req.Username)
	}
	if err != nil {
		http.Error(w, "Invalid Credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid Credentials", http.StatusUnauthorized)
		return
	}

	h.startSession(w, r, user)
}

// DemoLoginHandler signs in by email and role alone, creating the user on
// first use. Only mounted when Options.DemoLogin is set.
func (h *Handler) DemoLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req demoLoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid Data", http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		http.Error(w, "A valid email is required", http.StatusBadRequest)
		return
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		http.Error(w, "Unknown role: "+req.Role, http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if errors.Is(err, storage.ErrNotFound) {
		user, err = h.store.CreateUser(r.Context(), models.User{
			Username:       email,
			HashedPassword: "!", // never matches a bcrypt hash
			Email:          email,
			Role:           role,
			Name:           localPart(email),
		})
	} else if err == nil && user.Role != role {
		user, err = h.store.UpdateUser(r.Context(), user.ID, storage.UserPatch{Role: &role})
	}
	if err != nil {
		h.log.Error("[auth] demo login failed", zap.String("email", email), zap.Error(err))
		httputil.StoreError(w, "Failed to sign in", err)
		return
	}

	h.startSession(w, r, user)
}

// startSession replaces any existing session of user and sets the cookie.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user models.User) {
	session := models.Session{
		SessionID: utils.GenerateUUID(),
		UserID:    user.ID,
		ExpiresAt: h.now().Add(SessionLifetime),
	}
	if err := h.store.CreateSession(r.Context(), session); err != nil {
		h.log.Error("[auth] create session failed", zap.String("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.SessionID, session.ExpiresAt))
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		UserID:   user.ID,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	})
}

func (h *Handler) sessionCookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if h.opts.SecureCookies {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		http.Error(w, "Couldn't find cookie", http.StatusUnauthorized)
		return
	}

	deleted, err := h.store.DeleteSession(r.Context(), cookie.Value)
	if err != nil {
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Couldn't find session", http.StatusUnauthorized)
		return
	}

	expired := h.sessionCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Logout successful")
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Failed converting ID to string", http.StatusInternalServerError)
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Couldn't find user", http.StatusNotFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdatePasswordHandler(w http.ResponseWriter, r *http.Request) {
	type UpdatePassword struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	userID, _ := utils.GetUserIDFromContext(r.Context())
	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Couldn't find user", http.StatusUnauthorized)
		return
	}

	var req UpdatePassword
	if err := httputil.DecodeJSON(w, r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		http.Error(w, "Current and new password are required", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < MinPasswordLen {
		http.Error(w, fmt.Sprintf("Password must be at least %d characters", MinPasswordLen), http.StatusBadRequest)
		return
	}

	// Make sure the current password matches before updating
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.CurrentPassword)); err != nil {
		http.Error(w, "Invalid current password", http.StatusUnauthorized)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error hashing password", http.StatusInternalServerError)
		return
	}
	hashedStr := string(hashed)
	if _, err := h.store.UpdateUser(r.Context(), user.ID, storage.UserPatch{HashedPassword: &hashedStr}); err != nil {
		httputil.StoreError(w, "Failed to update password", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Password updated")
}

// CheckUsername rejects names that could be mistaken for an email at login.
func CheckUsername(name string) error {
	if strings.ContainsAny(name, "@ \t\n") {
		return errors.New("username cannot contain @ or whitespace")
	}
	return nil
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
