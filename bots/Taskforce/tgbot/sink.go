package tgbot

import (
	"context"
	"html"
	"net/http"
	"strings"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/jalenchen0/taskforce-bot/bot"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/notify"
	"github.com/jalenchen0/taskforce-bot/logger"
)

const errNotModified = "Bad Request: message is not modified"

// Deliver sends c to the owner's private chat.
func (b *TBot) Deliver(ctx context.Context, owner int64, c notify.Content) (notify.Handle, error) {
	m, err := b.SendMessage(ctx, owner, render(c), -1, nil)
	if err != nil {
		return notify.Handle{}, domain.DeliveryFailure(err)
	}
	return notify.Handle{ChatID: owner, MessageID: m.MessageID}, nil
}

// Edit replaces the text of a delivered message. The handle stays the same.
func (b *TBot) Edit(ctx context.Context, h notify.Handle, c notify.Content) (notify.Handle, error) {
	if err := b.ReplaceMessage(ctx, h.ChatID, render(c), h.MessageID, nil); err != nil {
		return notify.Handle{}, domain.DeliveryFailure(err)
	}
	return h, nil
}

// SendMessage sends an HTML message, retrying transient failures.
func (b *TBot) SendMessage(ctx context.Context, usr int64, txt string, replyTo int, kbMarkup *tg.InlineKeyboardMarkup) (tg.Message, error) {
	m := tg.NewMessage(usr, txt)
	if replyTo >= 0 {
		m.ReplyToMessageID = replyTo
	}
	m.ParseMode = tg.ModeHTML
	m.DisableWebPagePreview = true
	if kbMarkup != nil {
		m.BaseChat.ReplyMarkup = kbMarkup
	}

	var sent tg.Message
	var err error
	ok := bot.RobustExecute(ctx, b.RetryAttempts, b.RetryDelay, func() bool {
		sent, err = b.Bot.Send(m)
		return err == nil || !retryable(err)
	})
	if err == nil && !ok {
		err = ctx.Err()
	}
	if err != nil {
		logger.ForUser(b.Logger, usr).Debugw("failed sending message", "err", err)
		return tg.Message{}, errors.Wrap(err, "failed sending message")
	}
	return sent, nil
}

// ReplaceMessage edits a message in place. An edit that changes nothing
// counts as success.
func (b *TBot) ReplaceMessage(ctx context.Context, usr int64, txt string, msgID int, kbMarkup *tg.InlineKeyboardMarkup) error {
	updText := tg.EditMessageTextConfig{
		BaseEdit: tg.BaseEdit{
			ChatID:      usr,
			MessageID:   msgID,
			ReplyMarkup: kbMarkup,
		},
		DisableWebPagePreview: true,
		ParseMode:             tg.ModeHTML,
		Text:                  txt,
	}

	var err error
	ok := bot.RobustExecute(ctx, b.RetryAttempts, b.RetryDelay, func() bool {
		_, err = b.Bot.Request(updText)
		if err != nil && strings.HasPrefix(err.Error(), errNotModified) {
			err = nil
		}
		return err == nil || !retryable(err)
	})
	if err == nil && !ok {
		err = ctx.Err()
	}
	if err != nil {
		logger.ForUser(b.Logger, usr).Debugw("failed updating message text", "err", err)
		return errors.Wrap(err, "failed updating message text")
	}
	return nil
}

// retryable tells rate limits and server errors, which may pass on retry,
// from requests Telegram will never accept.
func retryable(err error) bool {
	var apiErr *tg.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

// render turns content into Telegram HTML. Everything is escaped, so content
// may carry raw user text.
func render(c notify.Content) string {
	var sb strings.Builder
	if c.Title != "" {
		sb.WriteString("<b>" + html.EscapeString(c.Title) + "</b>\n")
	}
	sb.WriteString(html.EscapeString(c.Body))

	var inline []string
	flush := func() {
		if len(inline) > 0 {
			sb.WriteString("\n" + strings.Join(inline, "  |  "))
			inline = nil
		}
	}
	if len(c.Fields) > 0 {
		sb.WriteString("\n")
	}
	for _, f := range c.Fields {
		line := "<b>" + html.EscapeString(f.Name) + ":</b> " + html.EscapeString(f.Value)
		if f.Inline {
			inline = append(inline, line)
			continue
		}
		flush()
		sb.WriteString("\n" + line)
	}
	flush()

	if c.Footer != "" {
		sb.WriteString("\n\n<i>" + html.EscapeString(c.Footer) + "</i>")
	}
	return sb.String()
}
