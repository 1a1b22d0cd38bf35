package tgbot

import (
	"context"
	"testing"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/notify"
)

func TestRender(t *testing.T) {
	c := notify.Content{
		Title:  "🔔 Reminder",
		Body:   "pay <rent> & bills",
		Footer: "Type /pomodoro stop to end your session",
	}.
		WithField("Completed", "1/4", true).
		WithField("Phase", "Work", true).
		WithField("Next", "Short break: 5 minutes", false)

	assert.Equal(t, "<b>🔔 Reminder</b>\n"+
		"pay &lt;rent&gt; &amp; bills\n"+
		"\n<b>Completed:</b> 1/4  |  <b>Phase:</b> Work"+
		"\n<b>Next:</b> Short break: 5 minutes"+
		"\n\n<i>Type /pomodoro stop to end your session</i>", render(c))
}

func TestRenderBodyOnly(t *testing.T) {
	assert.Equal(t, "just text", render(notify.Content{Body: "just text"}))
}

func TestDeliver(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})

	h, err := b.Deliver(context.Background(), 7, notify.Content{Title: "🔔 Reminder", Body: "stand-up"})
	require.NoError(t, err)
	assert.Equal(t, notify.Handle{ChatID: 7, MessageID: 1}, h)

	m := api.lastMessage()
	assert.Equal(t, int64(7), m.ChatID)
	assert.Equal(t, tg.ModeHTML, m.ParseMode)
	assert.Equal(t, "<b>🔔 Reminder</b>\nstand-up", m.Text)
}

func TestDeliverRetriesTransientErrors(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	api.sendErrs = []error{
		&tg.Error{Code: 429, Message: "Too Many Requests: retry after 1"},
		errors.New("connection reset by peer"),
	}

	h, err := b.Deliver(context.Background(), 7, notify.Content{Body: "stand-up"})
	require.NoError(t, err)
	assert.Equal(t, 3, h.MessageID)
}

func TestDeliverGivesUpOnPermanentErrors(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	api.sendErrs = []error{&tg.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}

	_, err := b.Deliver(context.Background(), 7, notify.Content{Body: "stand-up"})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeDelivery))
	assert.Contains(t, err.Error(), "bot was blocked by the user")
	assert.Len(t, api.texts(), 1)
}

func TestDeliverRunsOutOfAttempts(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	b.RetryAttempts = 2
	api.sendErrs = []error{
		&tg.Error{Code: 502, Message: "Bad Gateway"},
		&tg.Error{Code: 502, Message: "Bad Gateway"},
	}

	_, err := b.Deliver(context.Background(), 7, notify.Content{Body: "stand-up"})
	assert.True(t, domain.IsCode(err, domain.ErrCodeDelivery))
	assert.Len(t, api.texts(), 2)
}

func TestDeliverCancelled(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Deliver(ctx, 7, notify.Content{Body: "stand-up"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.texts())
}

func TestSendFailuresAreLoggedOnce(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	core, logs := observer.New(zap.InfoLevel)
	b.Logger = zap.New(core).Sugar()

	api.sendErrs = []error{&tg.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	_, err := b.Deliver(context.Background(), 7, notify.Content{Body: "stand-up"})
	require.Error(t, err)
	assert.Zero(t, logs.Len())

	api.sendErrs = []error{&tg.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	b.HandleCommand(context.Background(), command(7, "/help"))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("failed answering command").Len())
}

func TestEdit(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	h := notify.Handle{ChatID: 7, MessageID: 3}

	nh, err := b.Edit(context.Background(), h, notify.Content{Title: "🍅 Pomodoro Session", Body: "🔴 24:55 remaining"})
	require.NoError(t, err)
	assert.Equal(t, h, nh)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.sent, 1)
	edit, ok := api.sent[0].(tg.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, int64(7), edit.ChatID)
	assert.Equal(t, 3, edit.MessageID)
	assert.Equal(t, "<b>🍅 Pomodoro Session</b>\n🔴 24:55 remaining", edit.Text)
}

func TestEditNotModifiedIsSuccess(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	api.requestErr = &tg.Error{Code: 400, Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}

	_, err := b.Edit(context.Background(), notify.Handle{ChatID: 7, MessageID: 3}, notify.Content{Body: "x"})
	assert.NoError(t, err)
}

func TestEditGoneMessageFails(t *testing.T) {
	b, api := newTestBot(t, &spyGateway{})
	b.RetryDelay = time.Millisecond
	api.requestErr = &tg.Error{Code: 400, Message: "Bad Request: message to edit not found"}

	_, err := b.Edit(context.Background(), notify.Handle{ChatID: 7, MessageID: 3}, notify.Content{Body: "x"})
	assert.True(t, domain.IsCode(err, domain.ErrCodeDelivery))
	assert.Len(t, api.texts(), 1)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("i/o timeout")))
	assert.True(t, retryable(&tg.Error{Code: 429}))
	assert.True(t, retryable(errors.Wrap(&tg.Error{Code: 500}, "failed")))
	assert.False(t, retryable(&tg.Error{Code: 400}))
	assert.False(t, retryable(&tg.Error{Code: 403}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 45))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "привет…", truncate("привет мир", 7))
}
