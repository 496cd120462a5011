package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/lock"
	"github.com/noah-isme/backend-sdeal/internal/obs"
	"github.com/noah-isme/backend-sdeal/internal/queue"
)

// QuoteMailer handles quote-email tasks. A per-quote lock keeps a task that
// was redelivered after a visibility timeout from mailing in parallel with
// the original attempt.
type QuoteMailer struct {
	Sender  common.EmailSender
	Inbox   string
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// Handle implements the queue.Worker handler signature.
func (m QuoteMailer) Handle(ctx context.Context, task queue.Task) error {
	if m.Sender == nil {
		return errors.New("notify: sender not configured")
	}
	if m.Inbox == "" {
		return errors.New("notify: sales inbox not configured")
	}
	var msg QuoteEmail
	if err := json.Unmarshal(task.Payload, &msg); err != nil {
		// A malformed payload never becomes valid; drop it.
		m.Logger.Error().Err(err).Msg("discard undecodable quote email task")
		obs.RecordQuoteEmail("discarded")
		return nil
	}
	send := func(ctx context.Context) error {
		email, err := RenderQuoteEmail(m.Inbox, msg)
		if err != nil {
			return err
		}
		if err := m.Sender.Send(ctx, email); err != nil {
			obs.RecordQuoteEmail("error")
			return fmt.Errorf("send quote %s: %w", msg.QuoteID, err)
		}
		obs.RecordQuoteEmail("ok")
		m.Logger.Info().Str("quote_id", msg.QuoteID).Int("attempt", task.Attempt).Msg("quote email sent")
		return nil
	}
	if m.Locker == nil {
		return send(ctx)
	}
	ttl := m.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return m.Locker.WithLock(ctx, "quote-email:"+msg.QuoteID, ttl, send)
}
