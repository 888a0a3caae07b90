package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/benrobertsonio/marcoswift.com/internal/metrics"
	"github.com/benrobertsonio/marcoswift.com/internal/signup"
)

const maxFormBytes = 64 << 10

const (
	msgInvalidEmail = "Invalid email address"
	msgRateLimited  = "Too many attempts. Please try again later."
	msgServerError  = "Something went wrong"
)

type subscribeService interface {
	Subscribe(ctx context.Context, form signup.Form, sourceAddress string) (signup.Result, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	signup            subscribeService
	db                pinger
	trustForwardedFor bool
	logger            *log.Logger
}

func New(svc subscribeService, db pinger, trustForwardedFor bool) *Handler {
	return &Handler{
		signup:            svc,
		db:                db,
		trustForwardedFor: trustForwardedFor,
		logger:            log.New(os.Stdout, "", log.LstdFlags),
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/subscribe", h.subscribeHandler)
	mux.HandleFunc("/healthz", h.healthHandler)
	mux.Handle("/metrics", metrics.Handler())

	return h.loggingMiddleware(mux)
}

func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

func (h *Handler) subscribeHandler(
	w http.ResponseWriter,
	r *http.Request,
) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error": "Method not allowed",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	err := r.ParseMultipartForm(maxFormBytes)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.Printf("ℹ Unreadable signup form from %s: %v", r.RemoteAddr, err)
		metrics.SignupRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": msgInvalidEmail,
		})
		return
	}

	form := signup.Form{
		Email:   r.PostForm.Get("email"),
		Website: r.PostForm.Get("website"),
	}
	source := SourceAddress(r, h.trustForwardedFor)

	result, err := h.signup.Subscribe(r.Context(), form, source)
	if err != nil {
		h.writeSignupError(w, err)
		return
	}

	metrics.SignupRequests.WithLabelValues(string(result.Outcome)).Inc()

	// new, duplicate and honeypot submissions look the same from outside
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"redirect": result.Redirect,
	})
}

func (h *Handler) writeSignupError(w http.ResponseWriter, err error) {
	var (
		verr *signup.ValidationError
		rerr *signup.RateLimitError
	)

	switch {
	case errors.As(err, &verr):
		metrics.SignupRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": msgInvalidEmail,
		})
	case errors.As(err, &rerr):
		h.logger.Printf("⚠ %v", rerr)
		metrics.SignupRequests.WithLabelValues("rate_limited").Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": msgRateLimited,
		})
	default:
		h.logger.Printf("❌ Subscribe error: %v", err)
		metrics.SignupRequests.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": msgServerError,
		})
	}
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error": "Method not allowed",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Printf("❌ Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// SourceAddress returns the rate limit key for r. The connection's peer
// address is used unless trustForwardedFor is set, in which case the first
// X-Forwarded-For entry wins. X-Forwarded-For is also the fallback when the
// peer address is missing.
func SourceAddress(r *http.Request, trustForwardedFor bool) string {
	forwarded := firstForwardedFor(r)
	if trustForwardedFor && forwarded != "" {
		return forwarded
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote != "" {
		return remote
	}
	if forwarded != "" {
		return forwarded
	}
	return signup.UnknownSource
}

func firstForwardedFor(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
