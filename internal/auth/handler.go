package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, sessionManager: sessions, csrfManager: csrf}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/csrf", h.csrf)
	r.With(RequireIdentity).Get("/me", h.me)
}

type sessionView struct {
	Profile
	CSRFToken string `json:"csrf_token"`
}

type csrfView struct {
	CSRFToken string `json:"csrf_token"`
}

func (h *Handler) csrf(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, csrfView{CSRFToken: token})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	profile, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.signIn(w, r, profile, http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.String("email", req.Email), slog.Any("error", err))
		httpx.RespondError(w, h.logger, err)
		return
	}
	profile, err := h.service.Profile(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.signIn(w, r, profile, http.StatusOK)
}

// signIn rotates the session id, binds it to the user and issues a fresh
// CSRF token.
func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, profile Profile, status int) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, h.logger, shared.ErrUnauthorized)
		return
	}
	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sess.SignIn(profile.User.ID, profile.User.CompanyID)
	sess.Delete(shared.CSRFSessionKey)
	token, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, profile.User.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("user signed in",
		slog.Int64("user_id", profile.User.ID),
		slog.Int64("company_id", profile.User.CompanyID))
	httpx.JSON(w, status, sessionView{Profile: profile, CSRFToken: token})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.CurrentUser(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}
