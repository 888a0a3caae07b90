// Package signup implements the mailing list signup pipeline: honeypot and
// address checks, a per-source rate limit backed by the database, an
// idempotent subscriber insert, and a best-effort notification to the site
// operator when a new address arrives.
package signup

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/benrobertsonio/marcoswift.com/internal/metrics"
	"github.com/benrobertsonio/marcoswift.com/internal/models"
)

// UnknownSource keys the rate limit when no caller address is available.
const UnknownSource = "unknown"

// Neither part may contain whitespace, which here means
// ASCII space and controls, \v, any Unicode separator or U+FEFF.
var emailPattern = regexp.MustCompile(
	`^[^\s\v\p{Z}\x{FEFF}@]+@[^\s\v\p{Z}\x{FEFF}@]+\.[^\s\v\p{Z}\x{FEFF}@]+$`,
)

// Store is the persistence the pipeline needs. *database.DB satisfies it.
type Store interface {
	CountRecentAttempts(ctx context.Context, sourceAddress string, window time.Duration) (int, error)
	RecordAttempt(ctx context.Context, sourceAddress string) (*models.RateLimitAttempt, error)
	PruneAttempts(ctx context.Context, retention time.Duration) (int64, error)
	AddSubscriber(ctx context.Context, email, sourceAddress string) (*models.Subscriber, bool, error)
}

// Notifier is told about subscribers that were stored for the first time.
type Notifier interface {
	NotifyNewSubscriber(ctx context.Context, subscriber models.Subscriber) error
	Transport() string
}

type Form struct {
	Email string
	// Website is the hidden honeypot field.
	Website string
}

type Outcome string

const (
	OutcomeSubscribed Outcome = "subscribed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeHoneypot   Outcome = "honeypot"
)

// Result is what a successful submission reports. Outcome is for logging and
// metrics only; callers must present every outcome identically.
type Result struct {
	Redirect string
	Outcome  Outcome
}

type Options struct {
	MaxAttempts int
	Window      time.Duration
	Retention   time.Duration
	Redirect    string
	Logger      *log.Logger
}

type Service struct {
	store    Store
	notifier Notifier
	opts     Options
}

// New returns a Service. notifier may be nil, which disables notifications.
func New(store Store, notifier Notifier, opts Options) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.Redirect == "" {
		opts.Redirect = "/download"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Service{store: store, notifier: notifier, opts: opts}
}

// NormalizeEmail trims and lowercases raw and reports whether the result
// looks like an address.
func NormalizeEmail(raw string) (string, bool) {
	// ToLower rewrites invalid bytes as U+FFFD, so check before lowering.
	if !utf8.ValidString(raw) {
		return raw, false
	}
	email := strings.ToLower(strings.TrimFunc(raw, isSpace))
	if email == "" || !emailPattern.MatchString(email) {
		return email, false
	}
	return email, true
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// Subscribe runs one submission through the pipeline. Errors are always one
// of *ValidationError, *RateLimitError or *StorageError.
func (s *Service) Subscribe(
	ctx context.Context,
	form Form,
	sourceAddress string,
) (Result, error) {
	if form.Website != "" {
		s.opts.Logger.Printf("ℹ Honeypot triggered from %s", sourceAddress)
		return Result{Redirect: s.opts.Redirect, Outcome: OutcomeHoneypot}, nil
	}

	email, ok := NormalizeEmail(form.Email)
	if !ok {
		return Result{}, &ValidationError{Email: email}
	}

	if sourceAddress == "" {
		sourceAddress = UnknownSource
	}

	count, err := s.store.CountRecentAttempts(ctx, sourceAddress, s.opts.Window)
	if err != nil {
		return Result{}, &StorageError{Op: "count attempts", Err: err}
	}
	if count >= s.opts.MaxAttempts {
		return Result{}, &RateLimitError{
			SourceAddress: sourceAddress,
			Attempts:      count,
			Window:        s.opts.Window,
		}
	}

	if _, err := s.store.RecordAttempt(ctx, sourceAddress); err != nil {
		return Result{}, &StorageError{Op: "record attempt", Err: err}
	}

	// housekeeping only; a failed prune must not cost a signup
	pruned, err := s.store.PruneAttempts(ctx, s.opts.Retention)
	if err != nil {
		s.opts.Logger.Printf("⚠ Failed to prune rate limit attempts: %v", err)
	} else {
		metrics.RateLimitPruned.Add(float64(pruned))
	}

	subscriber, created, err := s.store.AddSubscriber(ctx, email, sourceAddress)
	if err != nil {
		return Result{}, &StorageError{Op: "add subscriber", Err: err}
	}

	if !created {
		s.opts.Logger.Printf("ℹ Skipping notification for %s: duplicate email", email)
		return Result{Redirect: s.opts.Redirect, Outcome: OutcomeDuplicate}, nil
	}

	s.opts.Logger.Printf("✓ New subscriber added: %s", email)
	s.notify(ctx, *subscriber)

	return Result{Redirect: s.opts.Redirect, Outcome: OutcomeSubscribed}, nil
}

func (s *Service) notify(ctx context.Context, subscriber models.Subscriber) {
	if s.notifier == nil {
		s.opts.Logger.Printf("ℹ Skipping notification for %s: no notifier configured", subscriber.Email)
		return
	}

	transport := s.notifier.Transport()
	if err := s.notifier.NotifyNewSubscriber(ctx, subscriber); err != nil {
		metrics.SignupNotifications.WithLabelValues(transport, "failed").Inc()
		s.opts.Logger.Printf("❌ %v", &NotificationError{Email: subscriber.Email, Err: err})
		return
	}

	metrics.SignupNotifications.WithLabelValues(transport, "sent").Inc()
	s.opts.Logger.Printf("✓ Notification sent for %s via %s", subscriber.Email, transport)
}

func (s *Service) String() string {
	return fmt.Sprintf(
		"signup(max=%d window=%s retention=%s notify=%t)",
		s.opts.MaxAttempts,
		s.opts.Window,
		s.opts.Retention,
		s.notifier != nil,
	)
}
