// Command accountsdemo is a minimal HTTP adapter around the accounts
// service: JSON endpoints for registration, login, confirmation, password
// reset and logout, with the signed session token held in a server-side
// browser session. It exists to show the wiring; route shapes and rendering
// are not part of the library.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/caarlos0/env/v11"
	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arjenw/accounts"
	"github.com/arjenw/accounts/oauth"
	gormstore "github.com/arjenw/accounts/stores/gorm"
)

type config struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"accounts.db"`
	SessionSecret string `env:"SESSION_SECRET"`
}

type app struct {
	svc      *accounts.Service
	sessions *scs.SessionManager
	baseURL  string
	logger   *slog.Logger
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Error("parsing config", "err", err)
		os.Exit(1)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		logger.Error("opening database", "err", err)
		os.Exit(1)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		logger.Error("migrating database", "err", err)
		os.Exit(1)
	}

	svc := accounts.NewService(
		gormstore.New(db),
		&accounts.ConsoleEmailSender{},
		oauth.NewRegistry(oauth.NewGoogle("", "", ""), oauth.NewGitHub("", "", "")),
		accounts.Config{SessionSecret: []byte(cfg.SessionSecret), Logger: logger},
	)

	sessions := scs.New()
	sessions.Lifetime = 60 * 24 * time.Hour

	a := &app{svc: svc, sessions: sessions, baseURL: cfg.BaseURL, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/signup", a.handleSignup).Methods("POST")
	r.HandleFunc("/login", a.handleLogin).Methods("POST")
	r.HandleFunc("/logout", a.handleLogout).Methods("POST")
	r.HandleFunc("/confirm", a.handleConfirm).Methods("GET")
	r.HandleFunc("/forgot-password", a.handleForgotPassword).Methods("POST")
	r.HandleFunc("/reset-password", a.handleResetPassword).Methods("POST")
	r.HandleFunc("/me", a.handleMe).Methods("GET")

	logger.Info("listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, sessions.LoadAndSave(r)); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

const sessionTokenKey = "session_token"

func (a *app) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	user, err := a.svc.RegisterUser(r.Context(), accounts.UserParams{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	if user.Email != "" {
		if _, err := a.svc.DeliverUserConfirmation(r.Context(), user, a.linkTo("/confirm")); err != nil {
			a.logger.Error("delivering confirmation", "err", err)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": user.ID})
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	user, err := a.svc.AuthenticateByPassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	signed, _, err := a.svc.CreateSession(r.Context(), user)
	if err != nil {
		a.writeError(w, err)
		return
	}

	// Rotate the browser-session ID on login.
	if err := a.sessions.RenewToken(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	a.sessions.Put(r.Context(), sessionTokenKey, signed)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": user.ID})
}

func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	signed := a.sessions.GetString(r.Context(), sessionTokenKey)
	if err := a.svc.DeleteSessionByToken(r.Context(), signed); err != nil {
		a.writeError(w, err)
		return
	}
	_ = a.sessions.Destroy(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *app) handleConfirm(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.ConfirmUser(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": user.ID, "confirmed": true})
}

func (a *app) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	// Always answer the same way so the endpoint cannot be used to probe
	// which addresses have accounts.
	if user, err := a.svc.UserByEmail(r.Context(), req.Email); err == nil && user != nil {
		if _, err := a.svc.DeliverPasswordReset(r.Context(), user, a.linkTo("/reset-password")); err != nil {
			a.logger.Error("delivering reset", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "if that email exists, a reset link has been sent"})
}

func (a *app) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	if _, err := a.svc.ResetPasswordByToken(r.Context(), req.Token, req.Password); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *app) handleMe(w http.ResponseWriter, r *http.Request) {
	signed := a.sessions.GetString(r.Context(), sessionTokenKey)
	user, err := a.svc.UserBySessionToken(r.Context(), signed)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   user.ID,
		"email":     user.Email,
		"confirmed": user.Confirmed(),
	})
}

func (a *app) linkTo(path string) accounts.URLBuilder {
	return func(rawToken string) string {
		return fmt.Sprintf("%s%s?token=%s", a.baseURL, path, rawToken)
	}
}

func (a *app) writeError(w http.ResponseWriter, err error) {
	var verr *accounts.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make(map[string][]string)
		for _, f := range verr.Fields {
			fields[f.Field] = append(fields[f.Field], f.Message)
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
	case errors.Is(err, accounts.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
	case errors.Is(err, accounts.ErrTokenNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, accounts.ErrAlreadyConfirmed), errors.Is(err, accounts.ErrCurrentSession):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		a.logger.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
