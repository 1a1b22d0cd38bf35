package bot

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Each bot should implement the Bot interface.
type Bot interface {
	// Init wires the bot (connects to the store, configures the Telegram Bot
	// API, etc.) using the shared context. On failure, Init should return an
	// error rather than panic. Resources that need closing are registered with
	// Context.OnShutdown.
	Init(*Context) error
	// Run handles updates until ctx is cancelled. Multiple bots are supposed
	// to run concurrently, so Run should be started in a new goroutine.
	Run(ctx context.Context) error
}

var (
	botsRegistry = make(map[string]Bot)
	botsMu       sync.Mutex
)

// Register adds the bot to the list of bots to run. To register a bot call
// Register in the init function.
func Register(name string, bot Bot) bool {
	botsMu.Lock()
	defer botsMu.Unlock()

	_, ok := botsRegistry[name]
	if ok {
		return false
	}

	botsRegistry[name] = bot
	return true
}

// Named bot record in the bots registry.
type Record struct {
	Name string
	Bot  Bot
}

// GetThemAll returns sorted list of bots.
func GetThemAll() []Record {
	botsMu.Lock()
	defer botsMu.Unlock()

	bots := make([]Record, 0, len(botsRegistry))
	for n, b := range botsRegistry {
		bots = append(bots, Record{Name: n, Bot: b})
	}

	slices.SortFunc(bots, func(a, b Record) int { return strings.Compare(a.Name, b.Name) })
	return bots
}
