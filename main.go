package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bot"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/db"
	"github.com/jalenchen0/taskforce-bot/lifecycle"
	"github.com/jalenchen0/taskforce-bot/logger"

	_ "github.com/jalenchen0/taskforce-bot/bots/Taskforce"
)

const stopOnFailure = true

var envFile string

// getLogger creates a logger in global namespace
func getLogger(cfg *bot.Config) (*zap.Logger, *zap.SugaredLogger) {
	l := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	return l, logger.ForBot(l, "Global")
}

func main() {
	root := &cobra.Command{
		Use:          "taskforce",
		Short:        "Telegram bot for tasks, reminders and Pomodoro sessions",
		SilenceUsage: true,
		RunE:         run,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bots until SIGINT or SIGTERM",
			RunE:  run,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply Postgres migrations and exit",
			RunE:  migrate,
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// run starts every registered bot and blocks until shutdown
func run(cmd *cobra.Command, _ []string) error {
	cfg, err := bot.LoadConfig(envFile)
	if err != nil {
		return err
	}

	zl, log := getLogger(cfg)
	defer zl.Sync()

	appCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	lc := lifecycle.New(cfg.ShutdownTimeout, log)
	lc.Listen(cancel)

	var wg sync.WaitGroup
	var initErr error
	running := 0
	for _, rec := range bot.GetThemAll() {
		l := logger.ForBot(zl, rec.Name)

		if err := rec.Bot.Init(bot.NewContext(rec.Name, cfg, l, lc)); err != nil {
			l.Errorw("failed to initialize bot", "err", err)
			initErr = errors.Join(initErr, fmt.Errorf("%s: %w", rec.Name, err))
			if stopOnFailure {
				cancel()
				break
			}
			continue
		}

		running++
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Bot.Run(appCtx); err != nil {
				l.Errorw("bot stopped", "err", err)
			}
		}()
	}

	if running == 0 {
		log.Error("no bot is running")
		cancel()
	}

	<-appCtx.Done()
	log.Info("shutting down")

	err = lc.Shutdown(context.Background())
	wg.Wait()
	return errors.Join(initErr, err)
}

func migrate(_ *cobra.Command, _ []string) error {
	cfg := bot.ReadConfig(envFile)
	if cfg.Store.Driver != db.DriverPostgres {
		return fmt.Errorf("migrations are for the %s driver, %s is %q", db.DriverPostgres, bot.CfgStoreDriver, cfg.Store.Driver)
	}
	if cfg.Store.URL == "" {
		return fmt.Errorf("configuration is missing field(s): %s", bot.CfgStoreURL)
	}

	zl, log := getLogger(cfg)
	defer zl.Sync()

	return db.RunMigrations(cfg.Store.URL, log)
}
