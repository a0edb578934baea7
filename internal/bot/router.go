// Package bot maps chat platform events onto the whisper lifecycle and
// renders the answers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"whisper.relay/internal/i18n"
	"whisper.relay/internal/metrics"
	"whisper.relay/internal/models"
	"whisper.relay/internal/notify"
	"whisper.relay/internal/whisper"
)

// revealPrefix marks callback payloads produced by placeholder buttons.
const revealPrefix = "show_"

// Transport sends the router's answers back to the platform.
type Transport interface {
	AnswerInline(ctx context.Context, queryID string, cards []Card) error
	// AnswerCallback shows text to the tapping user only, as a toast or,
	// with alert set, as a dialog.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	// SendText posts text to a chat; for a user id that is the user's
	// private chat with the bot.
	SendText(ctx context.Context, chatID int64, text string) error
}

// Notifier receives every created whisper.
type Notifier interface {
	Notify(ctx context.Context, w *models.Whisper) notify.Report
}

type Router struct {
	whispers  *whisper.Service
	notifier  Notifier
	transport Transport
	catalog   *i18n.Catalog
	botName   string
	log       zerolog.Logger

	mu        sync.Mutex
	closed    bool
	notifying sync.WaitGroup
}

func NewRouter(svc *whisper.Service, notifier Notifier, transport Transport, catalog *i18n.Catalog, botName string, log zerolog.Logger) *Router {
	return &Router{
		whispers:  svc,
		notifier:  notifier,
		transport: transport,
		catalog:   catalog,
		botName:   botName,
		log:       log.With().Str("component", "router").Logger(),
	}
}

// HandleUpdate dispatches u to the matching handler. Updates of other kinds
// are ignored.
func (r *Router) HandleUpdate(ctx context.Context, u Update) error {
	switch {
	case u.InlineQuery != nil:
		return r.HandleInlineQuery(ctx, *u.InlineQuery)
	case u.Callback != nil:
		return r.HandleCallback(ctx, *u.Callback)
	case u.Message != nil:
		return r.HandleMessage(ctx, *u.Message)
	default:
		return nil
	}
}

// HandleInlineQuery answers a composition with the usage card, or stores the
// whisper and answers with its placeholder card.
func (r *Router) HandleInlineQuery(ctx context.Context, q InlineQuery) error {
	texts := r.catalog.For(q.From.LanguageCode)
	params := i18n.Params{Bot: r.botName}

	parsed, ok := whisper.Parse(q.Query)
	if !ok {
		metrics.UsageShown.Inc()
		usage := texts.Text(i18n.Usage, params)
		return r.transport.AnswerInline(ctx, q.ID, []Card{{
			ID:          "help",
			Title:       texts.Text(i18n.UsageTitle, params),
			Description: usage,
			Text:        usage,
		}})
	}

	w, err := r.whispers.Create(ctx, authorOf(q.From), parsed.Target, parsed.Secret)
	if err != nil {
		r.log.Error().Err(err).Int64("author_id", q.From.ID).Msg("creating whisper failed")
		return fmt.Errorf("creating whisper: %w", err)
	}

	r.notify(ctx, w)

	params.Target = parsed.Target
	return r.transport.AnswerInline(ctx, q.ID, []Card{{
		ID:          w.ID,
		Title:       texts.Text(i18n.PlaceholderTitle, params),
		Description: texts.Text(i18n.PlaceholderDescription, params),
		Text:        texts.Text(i18n.Placeholder, params),
		Button: &Button{
			Text: texts.Text(i18n.ShowButton, params),
			Data: revealPrefix + w.ID,
		},
	}})
}

// HandleCallback reveals the whisper behind a placeholder button and tells
// the tapping user what happened. The answer is only visible to them.
func (r *Router) HandleCallback(ctx context.Context, cb Callback) error {
	texts := r.catalog.For(cb.From.LanguageCode)
	params := i18n.Params{Bot: r.botName}

	id, ok := strings.CutPrefix(cb.Data, revealPrefix)
	if !ok || id == "" {
		return r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.NotFound, params), true)
	}

	res, err := r.whispers.Reveal(ctx, id, whisper.Requester{
		ID:           cb.From.ID,
		Username:     cb.From.Username,
		LanguageCode: cb.From.LanguageCode,
	})
	if err != nil {
		r.log.Error().Err(err).Str("whisper_id", id).Msg("revealing whisper failed")
		answerErr := r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.Failure, params), true)
		return errors.Join(fmt.Errorf("revealing whisper: %w", err), answerErr)
	}

	switch res.Outcome {
	case whisper.OutcomeNotFound:
		return r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.NotFound, params), true)
	case whisper.OutcomeForbidden:
		params.Target = res.TargetHandle
		return r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.NotForYou, params), true)
	case whisper.OutcomeUndeliverable:
		return r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.OpenDM, params), true)
	case whisper.OutcomeDeliveryFailed:
		return r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.Failure, params), true)
	default:
		return r.transport.AnswerCallback(ctx, cb.ID, texts.Text(i18n.SecretSent, params), false)
	}
}

// HandleMessage answers /start in a private chat with the usage text. That
// first message also opens the private channel reveals are delivered on.
func (r *Router) HandleMessage(ctx context.Context, m Message) error {
	if !m.Private || m.Command != "start" {
		return nil
	}
	texts := r.catalog.For(m.From.LanguageCode)
	return r.transport.SendText(ctx, m.ChatID, texts.Text(i18n.Usage, i18n.Params{Bot: r.botName}))
}

// Wait stops new observer notifications from starting and blocks until the
// pending ones are done. Whispers composed afterwards are still stored and
// answered, just not copied to observers.
func (r *Router) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.notifying.Wait()
}

// notify copies w to the observers in the background. It outlives the
// request context so a finished inline answer does not cancel it.
func (r *Router) notify(ctx context.Context, w *models.Whisper) {
	if r.notifier == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn().Str("whisper_id", w.ID).Msg("shutting down, observers not notified")
		return
	}
	r.notifying.Add(1)
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer r.notifying.Done()
		report := r.notifier.Notify(ctx, w)
		if report.Failed > 0 {
			r.log.Warn().
				Str("whisper_id", w.ID).
				Int("delivered", report.Delivered).
				Int("failed", report.Failed).
				Msg("some observers were not notified")
		}
	}()
}

func authorOf(u User) models.Author {
	return models.Author{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
