// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package httpapi exposes the account and session operations over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/internal/observability"
)

// AccountService is the account and session API used by the handlers.
type AccountService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.SessionGrant, error)
	Login(ctx context.Context, email, password string) (*auth.SessionGrant, error)
	Logout(ctx context.Context, token string)
	GetCurrentUser(ctx context.Context, id ulid.ULID) (*auth.User, error)
	CheckLoginStatus(ctx context.Context, token string) bool
	UpdateProfile(ctx context.Context, id ulid.ULID, upd auth.ProfileUpdate) (*auth.User, error)
	ChangePassword(ctx context.Context, id ulid.ULID, oldPassword, newPassword string) error
}

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.User, error)
}

// PasswordResetter runs the forgot/reset password flow.
type PasswordResetter interface {
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// ContactSender forwards contact-us messages.
type ContactSender interface {
	Send(ctx context.Context, from *auth.User, subject, message string) error
}

// Services are the handlers' collaborators. All are required.
type Services struct {
	Accounts AccountService
	Guard    Authenticator
	Resets   PasswordResetter
	Contact  ContactSender
}

// Config holds the HTTP settings of the router.
type Config struct {
	Production     bool
	CookieName     string
	CORSOrigins    []string
	AuthRateLimit  int
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

type api struct {
	Services
	production bool
	cookieName string
	validate   *validator.Validate
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewRouter builds the API handler.
func NewRouter(svcs Services, cfg Config) (http.Handler, error) {
	switch {
	case svcs.Accounts == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("account service is required")
	case svcs.Guard == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("guard is required")
	case svcs.Resets == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("password reset service is required")
	case svcs.Contact == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("contact service is required")
	case cfg.CookieName == "":
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("cookie name is required")
	case cfg.AuthRateLimit <= 0:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("auth rate limit must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &api{
		Services:   svcs,
		production: cfg.Production,
		cookieName: cfg.CookieName,
		validate:   newValidator(),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		a.observe,
		cfg.Metrics.Middleware,
		middleware.Recoverer,
		middleware.Timeout(cfg.RequestTimeout),
		secureHeaders(cfg.Production, a.logger),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           int((10 * time.Minute).Seconds()),
		}),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.respondError(w, r, oops.Code(codeRouteNotFound).Errorf("not found - %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.respondError(w, r, oops.Code(codeMethodNotAllowed).Errorf("method %s not allowed", r.Method))
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		//nolint:errcheck // client may disconnect
		w.Write([]byte("Home page"))
	})

	limitAuth := httprate.Limit(cfg.AuthRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			a.respondError(w, r, oops.Code(codeRateLimited).Errorf("too many requests, please try again later"))
		}),
	)

	r.Route("/api/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limitAuth)
			r.Post("/register", a.register)
			r.Post("/login", a.login)
			r.Post("/forgotpassword", a.forgotPassword)
			r.Put("/resetpassword/{resetToken}", a.resetPassword)
		})
		r.Get("/logout", a.logout)
		r.Get("/loggedin", a.loggedIn)
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/getuser", a.getUser)
			r.Patch("/updateuser", a.updateUser)
			r.Patch("/changepassword", a.changePassword)
		})
	})

	r.With(a.requireAuth).Post("/api/contactus", a.contactUs)

	return r, nil
}
