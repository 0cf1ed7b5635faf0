package autosplit

import "github.com/goliatone/go-autosplit/pkg/activity"

// WithActivityHooks emits run events to hooks. Nil entries are dropped.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *splitterConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.hooks = append(cfg.hooks, hook)
			}
		}
	}
}

// WithActivityChannel overrides the channel of run events.
func WithActivityChannel(channel string) Option {
	return func(cfg *splitterConfig) {
		cfg.channel = channel
	}
}

func (cfg splitterConfig) emitter() *activity.Emitter {
	return activity.NewEmitter(cfg.hooks, activity.Config{
		Enabled: len(cfg.hooks) > 0,
		Channel: cfg.channel,
	})
}
