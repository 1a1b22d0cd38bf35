package tgbot

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/pomodoro"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
)

const (
	cbqDelTask     = "deltask"
	cbqDelReminder = "delrem"

	maxButtonLabel    = 45
	numAssumedAvgItem = 100

	fmtTask       = "%d. %s <b>%s</b> (Priority %d)\n"
	fmtReminder   = "%d. <b>%s</b>\n     🕐 %s\n"
	fmtListTitle  = "%s (%d)"
	fmtLocalTimes = "\n<i>Times are shown in UTC%+d</i>"
)

var priorityMarks = map[int]string{
	domain.PriorityHigh:   "🔴",
	domain.PriorityMedium: "🟡",
	domain.PriorityLow:    "🟢",
}

func escape(s string) string {
	return html.EscapeString(s)
}

func formatTasks(tasks []domain.Task) (string, *tg.InlineKeyboardMarkup) {
	if len(tasks) == 0 {
		return "<b>" + titleTasks + "</b>\n" + txtNoTasks, nil
	}

	var sb strings.Builder
	sb.Grow(numAssumedAvgItem * len(tasks))
	sb.WriteString("<b>" + fmt.Sprintf(fmtListTitle, titleTasks, len(tasks)) + "</b>\n")

	rows := make([][]tg.InlineKeyboardButton, 0, len(tasks))
	for i, t := range tasks {
		sb.WriteString(fmt.Sprintf(fmtTask, i+1, priorityMarks[t.Priority], escape(t.Text), t.Priority))
		rows = append(rows, deleteButton(i+1, t.Text, cbqDelTask, t.ID))
	}

	kb := tg.NewInlineKeyboardMarkup(rows...)
	return sb.String(), &kb
}

func formatReminders(rs []domain.Reminder, offset int) (string, *tg.InlineKeyboardMarkup) {
	if len(rs) == 0 {
		return "<b>" + titleReminders + "</b>\n" + txtNoReminders, nil
	}

	var sb strings.Builder
	sb.Grow(numAssumedAvgItem * len(rs))
	sb.WriteString("<b>" + fmt.Sprintf(fmtListTitle, titleReminders, len(rs)) + "</b>\n")

	rows := make([][]tg.InlineKeyboardButton, 0, len(rs))
	for i, r := range rs {
		sb.WriteString(fmt.Sprintf(fmtReminder, i+1, escape(r.Message), timeutil.FormatLocal(r.RemindAt, offset)))
		rows = append(rows, deleteButton(i+1, r.Message, cbqDelReminder, r.ID))
	}
	sb.WriteString(fmt.Sprintf(fmtLocalTimes, offset))

	kb := tg.NewInlineKeyboardMarkup(rows...)
	return sb.String(), &kb
}

func deleteButton(n int, label, kind, id string) []tg.InlineKeyboardButton {
	return tg.NewInlineKeyboardRow(
		tg.NewInlineKeyboardButtonData(fmt.Sprintf("🗑️ %d. %s", n, truncate(label, maxButtonLabel)), kind+":"+id))
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func formatStatus(st pomodoro.Status, offset int) string {
	c := pomodoro.StatusContent(st)
	return fmt.Sprintf("%s\n%s\n<b>Completed Sessions:</b> %d/%d\n<b>Next:</b> %s\n<b>Started:</b> %s (UTC%+d)",
		escape(st.Phase.String()), escape(c.Body), st.Completed, st.SessionsBeforeLongBreak,
		escape(pomodoro.NextLabel(st.Settings, st.Next)), timeutil.FormatLocal(st.Started, offset), offset)
}
