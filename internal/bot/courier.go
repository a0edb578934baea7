package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"whisper.relay/internal/i18n"
	"whisper.relay/internal/models"
	"whisper.relay/internal/whisper"
)

var _ whisper.Courier = (*DMCourier)(nil)

// DMCourier delivers revealed secrets as a private message from the bot.
type DMCourier struct {
	transport Transport
	catalog   *i18n.Catalog
}

func NewDMCourier(transport Transport, catalog *i18n.Catalog) *DMCourier {
	return &DMCourier{transport: transport, catalog: catalog}
}

func (c *DMCourier) DeliverSecret(ctx context.Context, to whisper.Requester, w *models.Whisper) error {
	text := c.catalog.For(to.LanguageCode).Text(i18n.SecretMessage, i18n.Params{
		Sender: w.Author.Handle(),
		Secret: w.SecretText,
	})
	err := c.transport.SendText(ctx, to.ID, text)

	// Telegram answers 403 when the user never started the bot or blocked it.
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %w", whisper.ErrNoPrivateChannel, err)
	}
	return err
}
