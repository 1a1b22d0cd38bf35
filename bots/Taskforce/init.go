package taskforce

import (
	"context"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/jalenchen0/taskforce-bot/bot"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/db"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/health"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/pomodoro"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/reminder"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/tgbot"
)

const Name = "TaskforceBot"

type Taskforce struct {
	tbot *tgbot.TBot
}

// Init wires the store, the Telegram bot, the reminder scheduler, the
// pomodoro engine and the health endpoint. Shutdown hooks run in reverse, so
// the update loop stops first and the store closes last.
func (t *Taskforce) Init(ctx *bot.Context) error {
	cfg := ctx.Config
	l := ctx.Logger

	cycle, err := pomodoro.ParseCycle(cfg.Pomodoro.Cycle)
	if err != nil {
		return err
	}

	store, err := db.Open(context.Background(), db.Config{
		Driver:        cfg.Store.Driver,
		URL:           cfg.Store.URL,
		APIKey:        cfg.Store.APIKey,
		Timeout:       cfg.Store.Timeout,
		RetryAttempts: cfg.Store.RetryAttempts,
		RetryDelay:    cfg.Store.RetryDelay,
		Migrate:       cfg.Store.Migrate,
	}, l)
	if err != nil {
		l.Errorw("failed to initialize store", "err", err)
		return err
	}
	ctx.OnShutdown("store", func(context.Context) error {
		return store.Close()
	})

	d := db.NewDatabase(store, cfg.Store.Timeout)

	b, err := tg.NewBotAPI(cfg.TgToken)
	if err != nil {
		l.Errorw("failed to initialize Telegram Bot", "err", err)
		return errors.Wrap(err, "failed to initialize Telegram Bot")
	}

	b.Debug = false

	l.Infof("authorized on account %q (%q, %d)", b.Self.FirstName, b.Self.UserName, b.Self.ID)

	tbot := tgbot.NewTBot(b, d, l)
	tbot.RetryAttempts = cfg.Send.Attempts
	tbot.RetryDelay = cfg.Send.Delay

	engine := pomodoro.NewEngine(d, tbot, pomodoro.Config{
		Tick:         cfg.Pomodoro.Tick,
		RefreshEvery: cfg.Pomodoro.RefreshEvery,
		Cycle:        cycle,
	}, l.Named("pomodoro"))
	tbot.Pomodoro = engine
	ctx.OnShutdown("pomodoro", engine.Shutdown)

	scheduler := reminder.NewScheduler(d, tbot, cfg.Reminder.PollInterval, l.Named("reminder"))
	if err := scheduler.Start(); err != nil {
		l.Errorw("failed to start reminder scheduler", "err", err)
		return err
	}
	ctx.OnShutdown("reminders", scheduler.Stop)

	if cfg.HealthAddr != "" {
		hs := health.NewServer(d, engine, scheduler, l.Named("health"))
		if err := hs.Start(cfg.HealthAddr); err != nil {
			l.Errorw("failed to start health endpoint", "err", err)
			return err
		}
		ctx.OnShutdown("health", hs.Shutdown)
	}

	ctx.OnShutdown("updates", tbot.Shutdown)

	t.tbot = tbot
	return nil
}

func (t *Taskforce) Run(ctx context.Context) error {
	if t.tbot == nil {
		return errors.New("bot can't run before it's initialized")
	}
	return t.tbot.Run(ctx)
}

func init() {
	bot.Register(Name, &Taskforce{})
}
