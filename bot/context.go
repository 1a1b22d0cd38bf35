package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/lifecycle"
)

// Bot context keeps references to the common parts (configuration, logger,
// shutdown hooks) shared by the bot's components.
type Context struct {
	Name   string
	Config *Config
	Logger *zap.SugaredLogger

	lc *lifecycle.Manager
}

// NewContext creates new context. Make sure pointers are not nil.
func NewContext(name string, cfg *Config, logger *zap.SugaredLogger, lc *lifecycle.Manager) *Context {
	return &Context{
		Name:   name,
		Config: cfg,
		Logger: logger,
		lc:     lc,
	}
}

// OnShutdown registers fn to run at shutdown. Hooks run in reverse order of
// registration, so register resources before the things that use them.
func (ctx *Context) OnShutdown(name string, fn func(context.Context) error) {
	ctx.lc.Register(ctx.Name+"/"+name, fn)
}
