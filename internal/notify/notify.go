// Package notify pushes publish outcomes to a Telegram chat. The notifier is
// optional: without a token the daemon runs with a disabled instance whose
// methods are no-ops.
package notify

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"clipcast/internal/platform"
	logx "clipcast/pkg/logx"
)

const queueSize = 64

// Telegram sends messages through one bot to one chat. Callers enqueue and
// return immediately; a full queue drops the message rather than blocking the
// publish path.
type Telegram struct {
	bot  *tele.Bot
	chat tele.ChatID
	log  logx.Logger

	queue chan string
}

// Disabled returns a notifier that silently discards everything.
func Disabled() *Telegram { return &Telegram{} }

// New connects the bot. chatID is the numeric destination chat.
func New(token string, chatID int64, log logx.Logger) (*Telegram, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &Telegram{
		bot:   bot,
		chat:  tele.ChatID(chatID),
		log:   log,
		queue: make(chan string, queueSize),
	}, nil
}

// Enabled reports whether messages actually go anywhere.
func (t *Telegram) Enabled() bool { return t != nil && t.bot != nil }

// Run drains the queue until ctx is done. Intended for one supervised
// goroutine.
func (t *Telegram) Run(ctx context.Context) error {
	if !t.Enabled() {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-t.queue:
			if _, err := t.bot.Send(t.chat, msg); err != nil {
				t.log.Warn("telegram send failed", logx.Err(err))
			}
		}
	}
}

func (t *Telegram) enqueue(msg string) {
	if !t.Enabled() {
		return
	}
	select {
	case t.queue <- msg:
	default:
		t.log.Warn("notification dropped: queue full")
	}
}

// Announce sends a free-form message.
func (t *Telegram) Announce(msg string) { t.enqueue(msg) }

// PublishSucceeded implements the upload executor's notifier.
func (t *Telegram) PublishSucceeded(p platform.Platform, account, title string) {
	t.enqueue(fmt.Sprintf("✅ %s/%s published %q", p, account, title))
}

// PublishFailed implements the upload executor's notifier.
func (t *Telegram) PublishFailed(p platform.Platform, account string, err error) {
	t.enqueue(fmt.Sprintf("❌ %s/%s publish failed: %v", p, account, err))
}
