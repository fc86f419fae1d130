// control/hotreload.go
// Manages reload hooks run when the process is asked to re-read its
// environment (SIGHUP in cmd/wsecho).

package control

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Reloader holds component hooks invoked with a freshly loaded Config.
type Reloader struct {
	mu    sync.Mutex
	hooks []func(*Config)
}

// RegisterReloadHook adds a new component reload listener.
func (r *Reloader) RegisterReloadHook(fn func(*Config)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Reload loads the configuration through getenv and, when it is valid,
// hands it to every hook in registration order. An invalid configuration
// leaves the running components untouched.
func (r *Reloader) Reload(getenv func(string) string) error {
	cfg, err := LoadConfig(getenv)
	if err != nil {
		return err
	}
	r.mu.Lock()
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// LevelHook returns a reload hook that applies the configured log level to
// the process-wide zerolog filter.
func LevelHook(log zerolog.Logger) func(*Config) {
	return func(cfg *Config) {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("reload: ignoring log level")
			return
		}
		zerolog.SetGlobalLevel(level)
		log.Info().Str("level", level.String()).Msg("reload: log level applied")
	}
}
