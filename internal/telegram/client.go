// Package telegram sends bridge opening outlooks via the Telegram Bot API.
// It formats predictions and the strongest cascade links into a MarkdownV2
// message and delivers it with retry.
package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// sender is the part of the bot API the client uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendOutlook sends the opening outlook for the given predictions, followed by
// the strongest cascade links between bridges.
func (c *Client) SendOutlook(predictions []models.Prediction, edges []models.CascadeEdge) error {
	if len(predictions) == 0 {
		return nil
	}

	return c.send(formatOutlook(predictions, edges))
}

// SendError reports a failed monitoring cycle
func (c *Client) SendError(cycleErr error) error {
	return c.send(fmt.Sprintf("⚠️ *Monitoring cycle failed*\n\n%s", escapeMarkdownV2(cycleErr.Error())))
}

// SendRecovery reports that monitoring works again after failures
func (c *Client) SendRecovery(failedCycles int) error {
	text := fmt.Sprintf("Monitoring recovered after %d failed cycle(s).", failedCycles)
	return c.send("✅ " + escapeMarkdownV2(text))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatOutlook renders predictions and edges as a MarkdownV2 message
func formatOutlook(predictions []models.Prediction, edges []models.CascadeEdge) string {
	var b strings.Builder

	b.WriteString("🌉 *Bridge Opening Outlook*\n\n")
	at := escapeMarkdownV2(predictions[0].At.Format("Mon 2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "📅 For the hour from %s\n\n", at)

	names := make(map[int]string, len(predictions))
	for i, p := range predictions {
		names[p.BridgeID] = p.BridgeName

		name := p.BridgeName
		if name == "" {
			name = fmt.Sprintf("Bridge %d", p.BridgeID)
		}
		fmt.Fprintf(&b, "%d\\. *%s*\n", i+1, escapeMarkdownV2(name))

		chance := escapeMarkdownV2(fmt.Sprintf("%.0f%%", p.Probability*100))
		confidence := escapeMarkdownV2(fmt.Sprintf("%.0f%%", p.Confidence*100))
		fmt.Fprintf(&b, "   %s Chance: *%s* \\(confidence %s, %s\\)\n",
			levelEmoji(p.Probability), chance, confidence, escapeMarkdownV2(string(p.Tier)))
		fmt.Fprintf(&b, "   ⏱ Typical opening: %s\n", escapeMarkdownV2(formatMinutes(p.ExpectedDurationMinutes)))
		if p.CascadeFactor > 1 {
			fmt.Fprintf(&b, "   🔗 Cascade boost ×%s\n", escapeMarkdownV2(fmt.Sprintf("%.2f", p.CascadeFactor)))
		}
		b.WriteString("\n")
	}

	if len(edges) > 0 {
		b.WriteString("*Strongest cascades*\n")
		for _, e := range edges {
			line := fmt.Sprintf("%s → %s: %d times, ~%s later",
				bridgeLabel(names, e.TriggerBridgeID), bridgeLabel(names, e.TargetBridgeID),
				e.Occurrences, formatMinutes(e.MeanDelayMinutes))
			fmt.Fprintf(&b, "• %s\n", escapeMarkdownV2(line))
		}
	}

	return b.String()
}

func bridgeLabel(names map[int]string, id int) string {
	if name := names[id]; name != "" {
		return name
	}
	return fmt.Sprintf("Bridge %d", id)
}

func levelEmoji(probability float64) string {
	switch {
	case probability >= 0.5:
		return "🔴"
	case probability >= 0.2:
		return "🟡"
	default:
		return "🟢"
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatMinutes formats a length in minutes in a human-readable way
func formatMinutes(minutes float64) string {
	m := int(math.Round(minutes))
	if m < 1 {
		return "<1m"
	}
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh%dm", m/60, m%60)
}
