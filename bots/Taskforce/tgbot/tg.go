package tgbot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/pomodoro"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
	"github.com/jalenchen0/taskforce-bot/logger"
)

const updatesTimeout = 60

type Stage int

const (
	stageIdle Stage = iota
	stageAddTask
	stageRemind
	stageDelTask
	stageDelReminder
)

const (
	txtWelcomeMessage = "👋 Hi, I'm Taskforce. I keep your tasks, remind you about things at the right time and run Pomodoro sessions for you. Set your time zone with /timezone first, then have a look at /help"
	txtHelpMessage    = `<b>📔 Taskforce Guide</b>

<b>Tasks</b>
/addtask &lt;1-3&gt; &lt;text&gt; - add a task with priority 1 (high), 2 (medium) or 3 (low)
/tasks - list your tasks
/deltask &lt;n&gt; - delete the n-th task

<b>Reminders</b>
/remind &lt;YYYY-MM-DD&gt; &lt;HH:MM&gt; &lt;message&gt; - remind you at your local time
/reminders - list your reminders
/delreminder &lt;n&gt; - delete the n-th reminder
/timezone [offset] - show or set your UTC offset in hours, e.g. /timezone -5

<b>Pomodoro</b>
/pomodoro start - start a work session
/pomodoro stop - stop the session
/pomodoro status - show the session
/pomodoro settings [work short long sessions] - show or change durations in minutes`
	txtUnknownCommand       = "I don't known this command. Use /help to list commands I know"
	txtDoNotUnderstand      = "E-mm, I don't understand. Use /help to list commands I know"
	txtSendMeTask           = "Send me the task as <code>&lt;priority 1-3&gt; &lt;text&gt;</code>"
	txtSendMeReminder       = "Send me the reminder as <code>YYYY-MM-DD HH:MM message</code> in your local time"
	txtWhatTaskToDelete     = "Which task do you want to delete? Send its number or tap a button"
	txtWhatReminderToDelete = "Which reminder do you want to delete? Send its number or tap a button"
	txtNothingToDelete      = "There's nothing to delete"
	txtNoTasks              = "You don't have any tasks. Add one with /addtask"
	txtNoReminders          = "You don't have any reminders. Set one with /remind"
	txtPomodoroUsage        = "Use /pomodoro start, stop, status or settings"
	txtAlreadyGone          = "It's already gone"
	txtDeleted              = "🗑️ Deleted"

	titleTaskAdded        = "✅ Task Added"
	titleTasks            = "📝 Your Tasks"
	titleReminderSet      = "✅ Reminder Set"
	titleReminders        = "⏰ Your Reminders"
	titleTimezone         = "🕐 Your Timezone"
	titleTimezoneSet      = "✅ Timezone Set"
	titleDeleted          = "🗑️ Deleted"
	titlePomodoroStarted  = "🍅 Pomodoro Started"
	titlePomodoroStopped  = "⏹️ Pomodoro Stopped"
	titlePomodoroStatus   = "📊 Pomodoro Status"
	titlePomodoroSettings = "⚙️ Pomodoro Settings"
	titleSettingsSaved    = "✅ Pomodoro Settings Saved"

	titleInvalidInput    = "❌ Invalid Input"
	titleInvalidPriority = "❌ Invalid Priority"
	titleInvalidDate     = "❌ Invalid Date"
	titleInvalidTimezone = "❌ Invalid Timezone"
	titleInvalidSettings = "❌ Invalid Settings"
	titleTimeTravel      = "❌ Time Travel Error"
	titleSessionActive   = "❌ Session Already Active"
	titleNoSession       = "❌ No Active Session"
	titleStorage         = "❌ Storage Error"
	titlePomodoro        = "❌ Pomodoro Unavailable"

	fmtTaskAdded             = "<b>%s</b> (Priority %d)"
	fmtReminderSet           = "I'll remind you on %s (UTC%+d):\n<b>%s</b>"
	fmtTimezone              = "Your timezone offset is UTC%+d"
	fmtTimezoneSet           = "Your timezone offset is now UTC%+d"
	fmtPomodoroStarted       = "Work session started for %d minutes!"
	fmtPomodoroStopped       = "Session ended. Work sessions completed: %d"
	fmtPomodoroSettings      = "Work: %d min, Break: %d min, Long Break: %d min, Sessions: %d"
	fmtSettingsApplyNextTime = "\n<i>A running session keeps its durations until you restart it</i>"
	fmtStorageFailure        = "I couldn't reach storage: %s"
	fmtNumberInRangeExpected = "I expected a number in the range of 1-%d. Please repeat the command and enter correct value"
	fmtNoSuchDate            = "%s %s is not a real date and time"
)

var (
	errUnknownFormat = errors.New("unknown format")
	errOutOfRange    = errors.New("value is out of range")

	remindArgs = regexp.MustCompile(`^(\S+)\s+(\S+)\s+((?s:.+))$`)

	clk = clock.New()
)

type state struct {
	stage Stage
}

type Command struct {
	Name string
}

func makeCommand(name string) *Command {
	return &Command{Name: name}
}

var (
	cmdStart       = makeCommand("start")
	cmdHelp        = makeCommand("help")
	cmdAddTask     = makeCommand("addtask")
	cmdTasks       = makeCommand("tasks")
	cmdDelTask     = makeCommand("deltask")
	cmdRemind      = makeCommand("remind")
	cmdReminders   = makeCommand("reminders")
	cmdDelReminder = makeCommand("delreminder")
	cmdTimezone    = makeCommand("timezone")
	cmdPomodoro    = makeCommand("pomodoro")
)

// API is the part of *tg.BotAPI the bot talks to.
type API interface {
	Send(c tg.Chattable) (tg.Message, error)
	Request(c tg.Chattable) (*tg.APIResponse, error)
	GetUpdatesChan(config tg.UpdateConfig) tg.UpdatesChannel
	StopReceivingUpdates()
}

// Gateway is the persistence the commands need.
type Gateway interface {
	GetTasks(ctx context.Context, usr int64) ([]domain.Task, error)
	AddTask(ctx context.Context, usr int64, text string, priority int) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	GetReminders(ctx context.Context, usr int64) ([]domain.Reminder, error)
	AddReminder(ctx context.Context, usr int64, message string, at time.Time) (domain.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	GetTimezoneOffset(ctx context.Context, usr int64) (int, error)
	SetTimezoneOffset(ctx context.Context, usr int64, offset int) error
	GetPomodoroSettings(ctx context.Context, usr int64) (*domain.PomodoroSettings, error)
	SavePomodoroSettings(ctx context.Context, s domain.PomodoroSettings) error
}

// Pomodoro is the session engine as seen by the commands.
type Pomodoro interface {
	Start(ctx context.Context, usr int64) (pomodoro.Status, error)
	Stop(usr int64) error
	Status(usr int64) (pomodoro.Status, error)
}

type TBot struct {
	Bot           API
	DB            Gateway
	Pomodoro      Pomodoro
	Logger        *zap.SugaredLogger
	RetryDelay    time.Duration
	RetryAttempts int

	clk    clock.Clock
	mu     sync.Mutex
	states map[int64]*state

	running atomic.Bool
	stop    chan struct{}
	once    sync.Once
	done    chan struct{}
}

func NewTBot(api API, d Gateway, l *zap.SugaredLogger) *TBot {
	return &TBot{
		Bot:           api,
		DB:            d,
		Logger:        l,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
		clk:           clk,
		states:        make(map[int64]*state),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Run handles updates until ctx is done or Shutdown is called. Every update
// is handled in its own goroutine; Run waits for them before returning.
func (b *TBot) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("bot is already running")
	}
	defer close(b.done)

	uCfg := tg.NewUpdate(0)
	uCfg.Timeout = updatesTimeout
	updates := b.Bot.GetUpdatesChan(uCfg)

	// handlers outlive ctx so that replies in flight at shutdown still go out
	hctx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.Bot.StopReceivingUpdates()
			return nil
		case <-b.stop:
			b.Bot.StopReceivingUpdates()
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(hctx, u)
			}()
		}
	}
}

// Shutdown stops receiving updates and waits for the handlers in flight.
func (b *TBot) Shutdown(ctx context.Context) error {
	if !b.running.Load() {
		return nil
	}
	b.stopReceiving()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *TBot) stopReceiving() {
	b.once.Do(func() {
		close(b.stop)
	})
}

func (b *TBot) HandleUpdate(ctx context.Context, u tg.Update) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		if u.Message.IsCommand() {
			b.HandleCommand(ctx, u.Message)
		} else {
			b.HandleMessage(ctx, u.Message)
		}
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		b.HandleCallback(ctx, u.CallbackQuery)
	}
}

func (b *TBot) HandleMessage(ctx context.Context, msg *tg.Message) {
	usr := msg.From.ID
	stage := b.takeStage(usr)

	txt := strings.TrimSpace(msg.Text)
	if txt == "" {
		txt = strings.TrimSpace(msg.Caption)
	}

	switch stage {
	case stageAddTask:
		b.addTask(ctx, usr, txt)
	case stageRemind:
		b.addReminder(ctx, usr, txt)
	case stageDelTask:
		b.delTask(ctx, usr, msg.MessageID, txt)
	case stageDelReminder:
		b.delReminder(ctx, usr, msg.MessageID, txt)
	default:
		b.send(ctx, usr, txtDoNotUnderstand, msg.MessageID, nil)
	}
}

func (b *TBot) HandleCommand(ctx context.Context, msg *tg.Message) {
	usr := msg.From.ID
	// commands interrupt any ongoing command
	b.takeStage(usr)

	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case cmdStart.Name:
		logger.ForUser(b.Logger, usr).Info("user has started the bot")
		b.send(ctx, usr, txtWelcomeMessage, -1, nil)

	case cmdHelp.Name:
		b.send(ctx, usr, txtHelpMessage, -1, nil)

	case cmdAddTask.Name:
		if args == "" {
			b.prompt(ctx, usr, txtSendMeTask, stageAddTask)
			return
		}
		b.addTask(ctx, usr, args)

	case cmdTasks.Name:
		b.listTasks(ctx, usr)

	case cmdDelTask.Name:
		if args != "" {
			b.delTask(ctx, usr, msg.MessageID, args)
			return
		}
		if b.listTasks(ctx, usr) > 0 {
			b.prompt(ctx, usr, txtWhatTaskToDelete, stageDelTask)
		}

	case cmdRemind.Name:
		if args == "" {
			b.prompt(ctx, usr, txtSendMeReminder, stageRemind)
			return
		}
		b.addReminder(ctx, usr, args)

	case cmdReminders.Name:
		b.listReminders(ctx, usr)

	case cmdDelReminder.Name:
		if args != "" {
			b.delReminder(ctx, usr, msg.MessageID, args)
			return
		}
		if b.listReminders(ctx, usr) > 0 {
			b.prompt(ctx, usr, txtWhatReminderToDelete, stageDelReminder)
		}

	case cmdTimezone.Name:
		b.timezone(ctx, usr, args)

	case cmdPomodoro.Name:
		b.pomodoro(ctx, usr, args)

	default:
		b.send(ctx, usr, txtUnknownCommand, msg.MessageID, nil)
	}
}

// HandleCallback serves the delete buttons under the listings.
func (b *TBot) HandleCallback(ctx context.Context, cbq *tg.CallbackQuery) {
	usr := cbq.From.ID

	kind, id, ok := strings.Cut(cbq.Data, ":")
	if !ok || id == "" {
		b.answer(cbq, "")
		return
	}

	var found bool
	var err error
	switch kind {
	case cbqDelTask:
		found, err = b.deleteOwnedTask(ctx, usr, id)
	case cbqDelReminder:
		found, err = b.deleteOwnedReminder(ctx, usr, id)
	default:
		b.answer(cbq, "")
		return
	}

	switch {
	case err != nil:
		b.answer(cbq, "")
		b.fail(ctx, usr, titleStorage, err)
		return
	case !found:
		b.answer(cbq, txtAlreadyGone)
	default:
		b.answer(cbq, txtDeleted)
	}

	if cbq.Message == nil {
		return
	}
	var txt string
	var kb *tg.InlineKeyboardMarkup
	if kind == cbqDelTask {
		txt, kb, err = b.renderTasks(ctx, usr)
	} else {
		txt, kb, err = b.renderReminders(ctx, usr)
	}
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}
	b.ReplaceMessage(ctx, usr, txt, cbq.Message.MessageID, kb)
}

func (b *TBot) answer(cbq *tg.CallbackQuery, txt string) {
	if _, err := b.Bot.Request(tg.NewCallback(cbq.ID, txt)); err != nil {
		logger.ForUser(b.Logger, cbq.From.ID).Debugw("failed answering callback", "err", err)
	}
}

// deleteOwnedTask deletes the task only if usr owns it.
func (b *TBot) deleteOwnedTask(ctx context.Context, usr int64, id string) (bool, error) {
	tasks, err := b.DB.GetTasks(ctx, usr)
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return true, b.DB.DeleteTask(ctx, id)
		}
	}
	return false, nil
}

// deleteOwnedReminder deletes the reminder only if usr owns it.
func (b *TBot) deleteOwnedReminder(ctx context.Context, usr int64, id string) (bool, error) {
	rs, err := b.DB.GetReminders(ctx, usr)
	if err != nil {
		return false, err
	}
	for _, r := range rs {
		if r.ID == id {
			return true, b.DB.DeleteReminder(ctx, id)
		}
	}
	return false, nil
}

func (b *TBot) addTask(ctx context.Context, usr int64, txt string) {
	priority, text, err := parseTask(txt)
	if err != nil {
		title := titleInvalidInput
		if errors.Is(err, errOutOfRange) || errors.Is(err, errUnknownFormat) {
			title = titleInvalidPriority
			err = domain.ValidatePriority(0)
		}
		b.fail(ctx, usr, title, err)
		return
	}

	t, err := b.DB.AddTask(ctx, usr, text, priority)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	b.reply(ctx, usr, titleTaskAdded, fmt.Sprintf(fmtTaskAdded, escape(t.Text), t.Priority), nil)
}

// parseTask reads "<priority> <text>".
func parseTask(txt string) (int, string, error) {
	p, text, ok := strings.Cut(strings.TrimSpace(txt), " ")
	if !ok {
		return 0, "", domain.Validationf("use /addtask <1-3> <text>")
	}

	priority, err := validateInt(p, domain.PriorityHigh, domain.PriorityLow)
	if err != nil {
		return 0, "", err
	}

	text, err = domain.ValidateText(text)
	if err != nil {
		return 0, "", err
	}
	return priority, text, nil
}

func (b *TBot) listTasks(ctx context.Context, usr int64) int {
	tasks, err := b.DB.GetTasks(ctx, usr)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return 0
	}

	txt, kb := formatTasks(tasks)
	b.send(ctx, usr, txt, -1, kb)
	return len(tasks)
}

func (b *TBot) renderTasks(ctx context.Context, usr int64) (string, *tg.InlineKeyboardMarkup, error) {
	tasks, err := b.DB.GetTasks(ctx, usr)
	if err != nil {
		return "", nil, err
	}
	txt, kb := formatTasks(tasks)
	return txt, kb, nil
}

func (b *TBot) delTask(ctx context.Context, usr int64, replyID int, txt string) {
	tasks, err := b.DB.GetTasks(ctx, usr)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	if len(tasks) == 0 {
		b.send(ctx, usr, txtNothingToDelete, -1, nil)
		return
	}

	n, err := validateInt(txt, 1, len(tasks))
	if err != nil {
		b.send(ctx, usr, fmt.Sprintf(fmtNumberInRangeExpected, len(tasks)), replyID, nil)
		return
	}

	t := tasks[n-1]
	if err := b.DB.DeleteTask(ctx, t.ID); err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	b.reply(ctx, usr, titleDeleted, "<s>"+escape(t.Text)+"</s>", nil)
}

func (b *TBot) addReminder(ctx context.Context, usr int64, txt string) {
	m := remindArgs.FindStringSubmatch(strings.TrimSpace(txt))
	if m == nil {
		b.fail(ctx, usr, titleInvalidInput, domain.Validationf("use /remind YYYY-MM-DD HH:MM message"))
		return
	}
	date, hm := m[1], m[2]

	message, err := domain.ValidateText(m[3])
	if err != nil {
		b.fail(ctx, usr, titleInvalidInput, err)
		return
	}

	// calendar check doesn't depend on the offset, so it goes before any
	// store access
	if _, err := timeutil.ParseLocal(date, hm, 0); err != nil {
		b.failDate(ctx, usr, date, hm, err)
		return
	}

	offset, err := b.DB.GetTimezoneOffset(ctx, usr)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	at, err := timeutil.ParseLocal(date, hm, offset)
	if err != nil {
		b.failDate(ctx, usr, date, hm, err)
		return
	}

	if !at.After(b.clk.Now()) {
		b.fail(ctx, usr, titleTimeTravel, domain.Validationf("You can't set reminders in the past!"))
		return
	}

	r, err := b.DB.AddReminder(ctx, usr, message, at)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	logger.ForUser(b.Logger, usr).Debugw("reminder set", "id", r.ID, "at", r.RemindAt)
	b.reply(ctx, usr, titleReminderSet,
		fmt.Sprintf(fmtReminderSet, timeutil.FormatLocal(r.RemindAt, offset), offset, escape(r.Message)), nil)
}

func (b *TBot) failDate(ctx context.Context, usr int64, date, hm string, err error) {
	switch {
	case errors.Is(err, timeutil.ErrNoSuchTime):
		err = domain.Validationf(fmtNoSuchDate, date, hm)
	default:
		err = domain.Validationf("%s", err.Error())
	}
	b.fail(ctx, usr, titleInvalidDate, err)
}

func (b *TBot) listReminders(ctx context.Context, usr int64) int {
	txt, kb, n, err := b.reminders(ctx, usr)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return 0
	}

	b.send(ctx, usr, txt, -1, kb)
	return n
}

func (b *TBot) renderReminders(ctx context.Context, usr int64) (string, *tg.InlineKeyboardMarkup, error) {
	txt, kb, _, err := b.reminders(ctx, usr)
	return txt, kb, err
}

func (b *TBot) reminders(ctx context.Context, usr int64) (string, *tg.InlineKeyboardMarkup, int, error) {
	rs, err := b.DB.GetReminders(ctx, usr)
	if err != nil {
		return "", nil, 0, err
	}

	offset := 0
	if len(rs) > 0 {
		if offset, err = b.DB.GetTimezoneOffset(ctx, usr); err != nil {
			return "", nil, 0, err
		}
	}

	txt, kb := formatReminders(rs, offset)
	return txt, kb, len(rs), nil
}

func (b *TBot) delReminder(ctx context.Context, usr int64, replyID int, txt string) {
	rs, err := b.DB.GetReminders(ctx, usr)
	if err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	if len(rs) == 0 {
		b.send(ctx, usr, txtNothingToDelete, -1, nil)
		return
	}

	n, err := validateInt(txt, 1, len(rs))
	if err != nil {
		b.send(ctx, usr, fmt.Sprintf(fmtNumberInRangeExpected, len(rs)), replyID, nil)
		return
	}

	r := rs[n-1]
	if err := b.DB.DeleteReminder(ctx, r.ID); err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	b.reply(ctx, usr, titleDeleted, "<s>"+escape(r.Message)+"</s>", nil)
}

func (b *TBot) timezone(ctx context.Context, usr int64, args string) {
	if args == "" {
		offset, err := b.DB.GetTimezoneOffset(ctx, usr)
		if err != nil {
			b.fail(ctx, usr, titleStorage, err)
			return
		}
		b.reply(ctx, usr, titleTimezone, fmt.Sprintf(fmtTimezone, offset), nil)
		return
	}

	offset, err := strconv.Atoi(args)
	if err != nil {
		b.fail(ctx, usr, titleInvalidTimezone, domain.Validationf("offset must be a whole number of hours, e.g. /timezone -5"))
		return
	}
	if err := domain.ValidateOffset(offset); err != nil {
		b.fail(ctx, usr, titleInvalidTimezone, err)
		return
	}

	if err := b.DB.SetTimezoneOffset(ctx, usr, offset); err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	logger.ForUser(b.Logger, usr).Infow("timezone set", "offset", offset)
	b.reply(ctx, usr, titleTimezoneSet, fmt.Sprintf(fmtTimezoneSet, offset), nil)
}

func (b *TBot) pomodoro(ctx context.Context, usr int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.send(ctx, usr, txtPomodoroUsage, -1, nil)
		return
	}

	switch strings.ToLower(fields[0]) {
	case "start":
		st, err := b.Pomodoro.Start(ctx, usr)
		if err != nil {
			b.fail(ctx, usr, titlePomodoro, err)
			return
		}
		b.reply(ctx, usr, titlePomodoroStarted, fmt.Sprintf(fmtPomodoroStarted, st.Settings.WorkMinutes), nil)

	case "stop":
		st, err := b.Pomodoro.Status(usr)
		if err == nil {
			err = b.Pomodoro.Stop(usr)
		}
		if err != nil {
			b.fail(ctx, usr, titlePomodoro, err)
			return
		}
		b.reply(ctx, usr, titlePomodoroStopped, fmt.Sprintf(fmtPomodoroStopped, st.Completed), nil)

	case "status":
		st, err := b.Pomodoro.Status(usr)
		if err != nil {
			b.fail(ctx, usr, titlePomodoro, err)
			return
		}
		offset, err := b.DB.GetTimezoneOffset(ctx, usr)
		if err != nil {
			logger.ForUser(b.Logger, usr).Warnw("failed fetching timezone offset; showing UTC", "err", err)
			offset = 0
		}
		b.reply(ctx, usr, titlePomodoroStatus, formatStatus(st, offset), nil)

	case "settings":
		b.pomodoroSettings(ctx, usr, fields[1:])

	default:
		b.send(ctx, usr, txtPomodoroUsage, -1, nil)
	}
}

func (b *TBot) pomodoroSettings(ctx context.Context, usr int64, args []string) {
	if len(args) == 0 {
		s, err := b.DB.GetPomodoroSettings(ctx, usr)
		if err != nil {
			b.fail(ctx, usr, titleStorage, err)
			return
		}
		if s == nil {
			d := domain.DefaultPomodoroSettings(usr)
			s = &d
		}
		b.reply(ctx, usr, titlePomodoroSettings, fmt.Sprintf(fmtPomodoroSettings,
			s.WorkMinutes, s.ShortBreakMinutes, s.LongBreakMinutes, s.SessionsBeforeLongBreak), nil)
		return
	}

	s, err := parseSettings(usr, args)
	if err != nil {
		b.fail(ctx, usr, titleInvalidSettings, err)
		return
	}

	if err := b.DB.SavePomodoroSettings(ctx, s); err != nil {
		b.fail(ctx, usr, titleStorage, err)
		return
	}

	logger.ForUser(b.Logger, usr).Infow("pomodoro settings saved", "settings", s)
	b.reply(ctx, usr, titleSettingsSaved, fmt.Sprintf(fmtPomodoroSettings,
		s.WorkMinutes, s.ShortBreakMinutes, s.LongBreakMinutes, s.SessionsBeforeLongBreak)+fmtSettingsApplyNextTime, nil)
}

// parseSettings reads "work short long sessions".
func parseSettings(usr int64, args []string) (domain.PomodoroSettings, error) {
	if len(args) != 4 {
		return domain.PomodoroSettings{}, domain.Validationf("use /pomodoro settings <work> <short> <long> <sessions>")
	}

	var vals [4]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return domain.PomodoroSettings{}, domain.Validationf("%q is not a whole number", a)
		}
		vals[i] = v
	}

	s := domain.PomodoroSettings{
		OwnerID:                 usr,
		WorkMinutes:             vals[0],
		ShortBreakMinutes:       vals[1],
		LongBreakMinutes:        vals[2],
		SessionsBeforeLongBreak: vals[3],
	}
	return s, s.Validate()
}

func (b *TBot) prompt(ctx context.Context, usr int64, txt string, stage Stage) {
	if !b.send(ctx, usr, txt, -1, nil) {
		return
	}
	b.setStage(usr, stage)
}

// send answers a command and logs a failed send.
func (b *TBot) send(ctx context.Context, usr int64, txt string, replyTo int, kb *tg.InlineKeyboardMarkup) bool {
	if _, err := b.SendMessage(ctx, usr, txt, replyTo, kb); err != nil {
		logger.ForUser(b.Logger, usr).Errorw("failed answering command", "err", err)
		return false
	}
	return true
}

// reply sends a titled message. body is HTML; user text in it must be
// escaped.
func (b *TBot) reply(ctx context.Context, usr int64, title, body string, kb *tg.InlineKeyboardMarkup) {
	b.send(ctx, usr, "<b>"+escape(title)+"</b>\n"+body, -1, kb)
}

// fail replies with the error under title. Storage failures are logged too;
// validation errors and conflicts are the user's business only.
func (b *TBot) fail(ctx context.Context, usr int64, title string, err error) {
	var dErr *domain.Error
	if !errors.As(err, &dErr) {
		dErr = domain.PersistenceFailure(err)
	}

	var body string
	switch {
	case errors.Is(err, domain.ErrSessionActive):
		title, body = titleSessionActive, "You already have a running session. Use /pomodoro stop first"
	case errors.Is(err, domain.ErrNoSession):
		title, body = titleNoSession, "Start one with /pomodoro start"
	case dErr.Code == domain.ErrCodeValidation || dErr.Code == domain.ErrCodeConflict:
		body = capitalize(dErr.Message)
	default:
		logger.ForUser(b.Logger, usr).Errorw("storage failure", "err", err)
		cause := dErr.Message
		if dErr.Err != nil {
			cause = dErr.Err.Error()
		}
		title, body = titleStorage, fmt.Sprintf(fmtStorageFailure, cause)
	}

	b.reply(ctx, usr, title, escape(body), nil)
}

func (b *TBot) takeStage(usr int64) Stage {
	b.mu.Lock()
	defer b.mu.Unlock()

	userState := b.states[usr]
	if userState == nil {
		return stageIdle
	}
	stage := userState.stage
	userState.stage = stageIdle
	return stage
}

func (b *TBot) setStage(usr int64, stage Stage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	userState := b.states[usr]
	if userState == nil {
		userState = &state{stageIdle}
		b.states[usr] = userState
	}
	userState.stage = stage
}

func validateInt(txt string, min int, max int) (int, error) {
	val, err := strconv.Atoi(strings.TrimSpace(txt))
	if err != nil {
		return 0, errors.Wrap(errUnknownFormat, err.Error())
	}

	if val < min || val > max {
		return 0, errOutOfRange
	}
	return val, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
