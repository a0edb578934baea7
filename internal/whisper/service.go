// Package whisper holds the whisper lifecycle: composing, storing and
// revealing a secret addressed to a single handle.
//
// A whisper starts sealed and becomes opened the first time its target
// successfully receives it. The only authorization is a case-insensitive
// comparison between the requester's platform handle and the stored target
// handle; whoever the platform says owns that handle may read the secret.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"whisper.relay/internal/crypto"
	"whisper.relay/internal/metrics"
	"whisper.relay/internal/models"
	"whisper.relay/internal/store"
)

var (
	// ErrStoreUnavailable wraps any store failure. The request that hit it
	// fails; nothing is retried.
	ErrStoreUnavailable = errors.New("whisper store unavailable")
	ErrInvalidWhisper   = errors.New("whisper needs a target handle and secret text")
	// ErrNoPrivateChannel is returned by a Courier when the requester cannot
	// be messaged privately at all, for example because they never started
	// a conversation with the bot.
	ErrNoPrivateChannel = errors.New("requester has no private channel")
)

// idAttempts bounds id regeneration on the (practically impossible) collision.
const idAttempts = 3

// Requester is the platform identity asking to reveal a whisper.
type Requester struct {
	ID           int64
	Username     string
	LanguageCode string
}

// Courier delivers a revealed secret to the requester over a channel only
// they can read. A nil error means the message was accepted for delivery.
// Errors wrapping ErrNoPrivateChannel mean no such channel exists; any other
// error is a transient failure.
type Courier interface {
	DeliverSecret(ctx context.Context, to Requester, w *models.Whisper) error
}

type Outcome int

const (
	OutcomeNotFound Outcome = iota + 1
	OutcomeForbidden
	OutcomeUndeliverable
	OutcomeDeliveryFailed
	OutcomeRevealed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeUndeliverable:
		return "undeliverable"
	case OutcomeDeliveryFailed:
		return "delivery_failed"
	case OutcomeRevealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// RevealResult describes what a reveal attempt produced.
//
// TargetHandle is set whenever the whisper exists. Whisper is only set for
// OutcomeRevealed. FirstOpen is true for the single reveal that moved the
// whisper from sealed to opened.
type RevealResult struct {
	Outcome      Outcome
	TargetHandle string
	Whisper      *models.Whisper
	FirstOpen    bool
	DeliveryErr  error
}

type Options struct {
	StoreTimeout    time.Duration
	DeliveryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 10 * time.Second
	}
	return o
}

type Service struct {
	store   store.Store
	courier Courier
	log     zerolog.Logger
	opts    Options

	now   func() time.Time
	newID func() string
}

func NewService(st store.Store, courier Courier, log zerolog.Logger, opts Options) *Service {
	return &Service{
		store:   st,
		courier: courier,
		log:     log.With().Str("component", "whisper").Logger(),
		opts:    opts.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   crypto.GenerateID,
	}
}

// Create stores a new sealed whisper from author to targetHandle and returns
// it. Identical content submitted twice yields two independent whispers.
func (s *Service) Create(ctx context.Context, author models.Author, targetHandle, secretText string) (*models.Whisper, error) {
	target := NormalizeHandle(targetHandle)
	if target == "" || secretText == "" {
		return nil, ErrInvalidWhisper
	}

	w := &models.Whisper{
		Author:       author,
		TargetHandle: target,
		SecretText:   secretText,
		CreatedAt:    s.now(),
	}

	var err error
	for i := 0; i < idAttempts; i++ {
		w.ID = s.newID()
		err = s.withStore(ctx, "create", func(ctx context.Context) error {
			return s.store.Create(ctx, w)
		})
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
		s.log.Warn().Str("whisper_id", w.ID).Msg("whisper id collision, regenerating")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	metrics.WhispersCreated.Inc()
	s.log.Info().
		Str("whisper_id", w.ID).
		Int64("author_id", author.ID).
		Str("target", target).
		Msg("whisper created")

	return w, nil
}

// Reveal hands the secret of whisper id to req if req's handle matches the
// target. The whisper is marked opened only after the courier accepted the
// secret, and only the first successful reveal records opened_at/opened_by.
// A failed delivery leaves the whisper sealed: OutcomeUndeliverable when the
// requester has no private channel, OutcomeDeliveryFailed otherwise.
// Later reveals by the target deliver the secret again without touching
// those fields.
func (s *Service) Reveal(ctx context.Context, id string, req Requester) (RevealResult, error) {
	var w *models.Whisper
	err := s.withStore(ctx, "get", func(ctx context.Context) error {
		var err error
		w, err = s.store.Get(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return s.result(id, RevealResult{Outcome: OutcomeNotFound}), nil
	}
	if err != nil {
		return RevealResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	handle := NormalizeHandle(req.Username)
	if handle == "" || handle != w.TargetHandle {
		return s.result(id, RevealResult{
			Outcome:      OutcomeForbidden,
			TargetHandle: w.TargetHandle,
		}), nil
	}

	deliverCtx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	err = s.courier.DeliverSecret(deliverCtx, req, w)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Str("whisper_id", id).Int64("requester_id", req.ID).Msg("secret delivery failed")
		outcome := OutcomeDeliveryFailed
		if errors.Is(err, ErrNoPrivateChannel) {
			outcome = OutcomeUndeliverable
		}
		return s.result(id, RevealResult{
			Outcome:      outcome,
			TargetHandle: w.TargetHandle,
			DeliveryErr:  err,
		}), nil
	}

	openedAt := s.now()
	var firstOpen bool
	err = s.withStore(ctx, "mark_opened", func(ctx context.Context) error {
		var err error
		firstOpen, err = s.store.MarkOpened(ctx, id, req.ID, openedAt)
		return err
	})
	if err != nil {
		return RevealResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if firstOpen {
		w.OpenedAt = &openedAt
		w.OpenedBy = &req.ID
	}

	return s.result(id, RevealResult{
		Outcome:      OutcomeRevealed,
		TargetHandle: w.TargetHandle,
		Whisper:      w,
		FirstOpen:    firstOpen,
	}), nil
}

func (s *Service) result(id string, r RevealResult) RevealResult {
	metrics.Reveals.WithLabelValues(r.Outcome.String()).Inc()
	s.log.Debug().
		Str("whisper_id", id).
		Stringer("outcome", r.Outcome).
		Bool("first_open", r.FirstOpen).
		Msg("reveal handled")
	return r
}

// withStore runs fn under the store timeout and records its latency.
func (s *Service) withStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}
