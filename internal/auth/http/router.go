package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"

	_ "github.com/aussiebroadwan/gatekeep/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	cookies      httpx.CookieOptions

	store    store.Store
	notifier notify.Notifier

	Accounts           *service.AccountService
	Users              *service.UserService
	Sessions           *service.SessionService
	EmailVerifications *service.EmailVerificationService
	PasswordResets     *service.PasswordResetService
	TwoFactor          *service.TwoFactorService
}

// NewRouter builds the router. limiter guards every request and may be nil.
func NewRouter(
	buildVersion string,
	st store.Store,
	notifier notify.Notifier,
	cookies httpx.CookieOptions,
	limiter *httpx.RateLimiter,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		cookies:      cookies,
		store:        st,
		notifier:     notifier,
	}

	r.middlewares = []httpx.Middleware{slogx.HTTPMiddleware(r.logger, slogx.WithSessionCookie(authsdk.SessionCookie))}
	if limiter != nil {
		r.middlewares = append(r.middlewares, limiter.Middleware())
	}
	r.middlewares = append(r.middlewares, r.loadSession)

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAccounts()
	r.registerEmailVerification()
	r.registerPasswordReset()
	r.registerTwoFactor()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatekeep Authentication Service API
//	@version		0.1.0
//	@description	Cookie based sessions with email verification, password reset and TOTP second factor.
//	@description
//	@description	The session cookie is set by signup, login and password reset. Reset steps use the password_reset_session cookie.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/gatekeep
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccounts() {
	h := &AccountHandler{
		Accounts:           r.Accounts,
		EmailVerifications: r.EmailVerifications,
		Cookies:            r.cookies,
	}

	r.Mux.HandleFunc("POST /v1/signup", h.HandleSignup)
	r.Mux.HandleFunc("POST /v1/login", h.HandleLogin)
	r.Mux.Handle("POST /v1/logout", requireSession(h.HandleLogout))
	r.Mux.Handle("GET /v1/me", requireSession(h.HandleMe))
	r.Mux.Handle("POST /v1/password", requireSession(h.HandleChangePassword))
}

func (r *Router) registerEmailVerification() {
	h := &EmailVerificationHandler{
		EmailVerifications: r.EmailVerifications,
		Cookies:            r.cookies,
	}

	r.Mux.Handle("POST /v1/email-verification/verify", requireSession(h.HandleVerify))
	r.Mux.Handle("POST /v1/email-verification/resend", requireSession(h.HandleResend))
	r.Mux.Handle("POST /v1/email", requireSession(h.HandleChangeEmail))
}

func (r *Router) registerPasswordReset() {
	h := &PasswordResetHandler{
		PasswordResets: r.PasswordResets,
		Users:          r.Users,
		Cookies:        r.cookies,
	}

	r.Mux.HandleFunc("POST /v1/password-reset", h.HandleCreate)
	r.Mux.HandleFunc("POST /v1/password-reset/verify-email", h.HandleVerifyEmail)
	r.Mux.HandleFunc("POST /v1/password-reset/verify-2fa/totp", h.HandleVerifyTOTP)
	r.Mux.HandleFunc("POST /v1/password-reset/verify-2fa/recovery-code", h.HandleVerifyRecoveryCode)
	r.Mux.HandleFunc("POST /v1/password-reset/update-password", h.HandleUpdatePassword)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactor: r.TwoFactor}

	r.Mux.Handle("GET /v1/2fa/totp/setup", requireSession(h.HandleEnroll))
	r.Mux.Handle("POST /v1/2fa/totp/setup", requireSession(h.HandleSetup))
	r.Mux.Handle("POST /v1/2fa/totp/verify", requireSession(h.HandleVerify))
	r.Mux.Handle("POST /v1/2fa/reset", requireSession(h.HandleReset))
	r.Mux.Handle("GET /v1/recovery-code", requireSession(h.HandleRecoveryCode))
	r.Mux.Handle("POST /v1/recovery-code", requireSession(h.HandleRegenerateRecoveryCode))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.notifier))
	r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
}
