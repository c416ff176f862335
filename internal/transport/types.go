package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// Reply describes the message this one replies to, when present.
	// Used by entry creation to capture media payloads.
	Reply *ReplyInfo
}

// ReplyInfo carries just enough of the replied-to message to download media
// lazily at creation time.
type ReplyInfo struct {
	MessageID   int
	Text        string
	PhotoFileID string // empty when the reply has no photo
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Adapter is the chat transport collaborator. The scheduling core and the
// plugins depend only on this interface, never on the concrete client.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo []byte, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// DownloadPhoto fetches the raw bytes of a photo by its file id.
	// Used only at entry-creation time, never from the delivery loop.
	DownloadPhoto(ctx context.Context, fileID string) ([]byte, error)
}
