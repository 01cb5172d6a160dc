package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"NewsHarvester/internal/ports"
)

// maxMessageRunes is the Telegram limit for a single text message.
const maxMessageRunes = 4096

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. The bot itself is
// resolved on first use, so a Telegram outage never blocks startup.
func NewNotifier(botToken string, chatID int64, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   client,
	}
}

// PublishDigest posts the digest as plain text, split on line boundaries
// when it exceeds one message.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n == nil || n.botToken == "" || n.chatID == 0 {
		return errors.New("telegram notifier misconfigured")
	}
	if strings.TrimSpace(digest) == "" {
		return nil
	}

	bot, err := n.api()
	if err != nil {
		return err
	}

	for _, chunk := range splitMessage(digest, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(n.chatID, chunk)
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (n *Notifier) api() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.bot != nil {
		return n.bot, nil
	}

	bot, err := tgbotapi.NewBotAPIWithClient(n.botToken, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	n.bot = bot
	return bot, nil
}

func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if size+len(runes) > limit {
			flush()
		}
		current.WriteString(string(runes))
		size += len(runes)
	}
	flush()

	return chunks
}
