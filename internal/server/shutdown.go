package server

import (
	"context"

	"github.com/rs/zerolog/log"
)

type namedHook struct {
	name string
	run  func(context.Context) error
}

// ShutdownHooks collects cleanup functions to run when the server stops.
// Hooks run in registration order, and a failing hook never prevents the
// remaining hooks from running.
type ShutdownHooks struct {
	hooks []namedHook
}

// AddContext registers a hook that receives the shutdown context, which
// carries the drain deadline. Nil hooks are ignored.
func (s *ShutdownHooks) AddContext(name string, hook func(context.Context) error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.hooks = append(s.hooks, namedHook{name: name, run: hook})
}

// Add registers a hook that does not need the shutdown context.
func (s *ShutdownHooks) Add(name string, hook func() error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return hook()
	})
}

// AddClose registers a resource to be closed on shutdown.
func (s *ShutdownHooks) AddClose(name string, closer interface{ Close() }) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.AddContext(name, func(context.Context) error {
		closer.Close()
		return nil
	})
}

// Execute runs every registered hook in order, logging each outcome.
func (s *ShutdownHooks) Execute(ctx context.Context) {
	for _, hook := range s.hooks {
		hookLog := log.Ctx(ctx).With().Str("hook", hook.name).Logger()

		if err := hook.run(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown hook failed")
		} else {
			hookLog.Info().Msg("shutdown hook complete")
		}
	}
}
