// Package notify sends operator observers a copy of every created whisper.
//
// Delivery is best effort: every observer gets at most one attempt, failures
// are logged and counted, and nothing is ever reported back to the author.
package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"whisper.relay/internal/i18n"
	"whisper.relay/internal/metrics"
	"whisper.relay/internal/models"
)

// TimeLayout formats the creation time in observer copies.
const TimeLayout = "2006-01-02 15:04:05 UTC"

// Sender delivers a plain text message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	Timeout     time.Duration // per observer
	Concurrency int
}

// Report summarizes one fan-out.
type Report struct {
	Delivered int
	Failed    int
}

type Dispatcher struct {
	sender    Sender
	observers []int64
	texts     *i18n.Bundle
	log       zerolog.Logger
	opts      Options
}

// NewDispatcher copies observers; the list is fixed for the dispatcher's
// lifetime.
func NewDispatcher(sender Sender, observers []int64, texts *i18n.Bundle, log zerolog.Logger, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Dispatcher{
		sender:    sender,
		observers: append([]int64(nil), observers...),
		texts:     texts,
		log:       log.With().Str("component", "notify").Logger(),
		opts:      opts,
	}
}

// Notify sends the observer copy of w to every observer and waits for all
// attempts. It never fails; the report is informational.
func (d *Dispatcher) Notify(ctx context.Context, w *models.Whisper) Report {
	if len(d.observers) == 0 {
		return Report{}
	}

	text := d.texts.Text(i18n.ObserverCopy, i18n.Params{
		Sender: w.Author.Handle(),
		Target: w.TargetHandle,
		Time:   w.CreatedAt.UTC().Format(TimeLayout),
		Secret: w.SecretText,
	})

	var delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)

	for _, observer := range d.observers {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
			defer cancel()

			if err := d.sender.SendText(sendCtx, observer, text); err != nil {
				failed.Add(1)
				metrics.ObserverNotifications.WithLabelValues("failed").Inc()
				d.log.Warn().Err(err).
					Int64("observer", observer).
					Str("whisper_id", w.ID).
					Msg("observer notification failed")
				return nil
			}
			delivered.Add(1)
			metrics.ObserverNotifications.WithLabelValues("delivered").Inc()
			return nil
		})
	}
	_ = g.Wait()

	return Report{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}
