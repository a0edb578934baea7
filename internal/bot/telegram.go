package bot

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"whisper.relay/internal/notify"
)

var (
	_ Transport     = (*TelegramTransport)(nil)
	_ notify.Sender = (*TelegramTransport)(nil)
)

// inlineCacheTime is how long Telegram may cache an inline answer, in
// seconds. Answers are per user and per query, so keep it minimal.
const inlineCacheTime = 1

// TelegramTransport talks to the Telegram Bot API.
//
// The client library does not take a context, so each call goes out through
// an HTTP client bound to the caller's context.
type TelegramTransport struct {
	api *tgbotapi.BotAPI
}

// NewTelegramTransport authenticates token against endpoint (a format
// string such as tgbotapi.APIEndpoint) with getMe.
func NewTelegramTransport(token, endpoint string, client *http.Client) (*TelegramTransport, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &TelegramTransport{api: api}, nil
}

// BotName is the bot's own username.
func (t *TelegramTransport) BotName() string {
	return t.api.Self.UserName
}

// SetWebhook points Telegram's update delivery at url.
func (t *TelegramTransport) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("building webhook: %w", err)
	}
	return t.request(ctx, wh)
}

func (t *TelegramTransport) AnswerInline(ctx context.Context, queryID string, cards []Card) error {
	results := make([]interface{}, 0, len(cards))
	for _, c := range cards {
		article := tgbotapi.NewInlineQueryResultArticle(c.ID, c.Title, c.Text)
		article.Description = c.Description
		if c.Button != nil {
			markup := tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(c.Button.Text, c.Button.Data),
				),
			)
			article.ReplyMarkup = &markup
		}
		results = append(results, article)
	}

	return t.request(ctx, tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		CacheTime:     inlineCacheTime,
		IsPersonal:    true,
	})
}

func (t *TelegramTransport) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	return t.request(ctx, cb)
}

func (t *TelegramTransport) SendText(ctx context.Context, chatID int64, text string) error {
	return t.request(ctx, tgbotapi.NewMessage(chatID, text))
}

// request sends c on a shallow copy of the bot whose HTTP client is bound
// to ctx, so an expired context aborts the call on the wire instead of
// leaving it running.
func (t *TelegramTransport) request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	api := *t.api
	api.Client = contextClient{ctx: ctx, client: t.api.Client}

	_, err := api.Request(c)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// contextClient attaches ctx to every request it sends.
type contextClient struct {
	ctx    context.Context
	client tgbotapi.HTTPClient
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// FromTelegram converts a decoded webhook update.
func FromTelegram(u tgbotapi.Update) Update {
	switch {
	case u.InlineQuery != nil:
		return Update{InlineQuery: &InlineQuery{
			ID:    u.InlineQuery.ID,
			From:  userFrom(u.InlineQuery.From),
			Query: u.InlineQuery.Query,
		}}
	case u.CallbackQuery != nil:
		return Update{Callback: &Callback{
			ID:   u.CallbackQuery.ID,
			From: userFrom(u.CallbackQuery.From),
			Data: u.CallbackQuery.Data,
		}}
	case u.Message != nil && u.Message.Chat != nil:
		m := &Message{
			ChatID:  u.Message.Chat.ID,
			Private: u.Message.Chat.IsPrivate(),
			From:    userFrom(u.Message.From),
			Text:    u.Message.Text,
		}
		if u.Message.IsCommand() {
			m.Command = u.Message.Command()
		}
		return Update{Message: m}
	default:
		return Update{}
	}
}

func userFrom(u *tgbotapi.User) User {
	if u == nil {
		return User{}
	}
	return User{
		ID:           u.ID,
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}
