package bot

// User is the platform identity attached to an inbound event.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// InlineQuery is a composition event: the text typed after the bot's name.
type InlineQuery struct {
	ID    string
	From  User
	Query string
}

// Callback is a tap on an inline button.
type Callback struct {
	ID   string
	From User
	Data string
}

// Message is a plain chat message sent to the bot.
type Message struct {
	ChatID  int64
	Private bool
	From    User
	Text    string
	Command string // without the leading "/", empty if not a command
}

// Update carries exactly one of its fields; unsupported updates carry none.
type Update struct {
	InlineQuery *InlineQuery
	Callback    *Callback
	Message     *Message
}

// Card is one inline query answer. Text is what gets posted to the chat
// when the composer picks the card.
type Card struct {
	ID          string
	Title       string
	Description string
	Text        string
	Button      *Button
}

type Button struct {
	Text string
	Data string
}
