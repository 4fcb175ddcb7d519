package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erbridge/erbridge/pkg/config"
	"github.com/erbridge/erbridge/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		debounce    time.Duration
		eventTypes  []string
		eventsLevel string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep an instance running and rebuild it when settings change",
		Long: `Build an instance, prime the engine and keep it running until interrupted.

The config file and the settings file are watched. When either changes the
instance is destroyed and rebuilt with the new settings. Metrics are served
on the configured address while the command runs.

Provider events at or above --events-level are logged. --events limits them
to the given types.`,
		Example: `  erctl watch --config erctl.yaml
  erctl watch --config erctl.yaml --events call.failed,facade.bound --events-level info`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()

				if err := logEvents(s.tel, eventTypes, eventsLevel); err != nil {
					return err
				}

				if server := s.tel.StartMetricsServer(); server != nil {
					log.Info().Str("address", server.Addr).Msg("Serving metrics")
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
						defer cancel()
						_ = server.Shutdown(shutdownCtx)
					}()
				}

				var mu sync.Mutex
				if err := s.prime(ctx); err != nil {
					return err
				}

				if len(s.opts.watched) == 0 {
					log.Warn().Msg("Nothing to watch: no config or settings file given")
				} else {
					watcher := config.NewWatcher(s.tel.Logger.Zerolog())
					watcher.SetDebounce(debounce)
					err := watcher.Watch(ctx, s.opts.watched, func(path string) error {
						mu.Lock()
						defer mu.Unlock()
						log.Info().Str("path", path).Msg("Settings changed, rebuilding instance")
						return s.rebuild(cmd)
					})
					if err != nil {
						return err
					}
					defer watcher.Stop()
				}

				<-ctx.Done()

				mu.Lock()
				defer mu.Unlock()
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "delay before reacting to a change")
	cmd.Flags().StringSliceVar(&eventTypes, "events", nil, "event types to log, e.g. call.failed (default all)")
	cmd.Flags().StringVar(&eventsLevel, "events-level", telemetry.EventLevelWarning, "minimum event level to log: info, warning or error")

	return cmd
}

// logEvents subscribes a logger to the session's provider events. Events
// below level are dropped, and so are events whose type is not in types
// when types is not empty.
func logEvents(tel *telemetry.Telemetry, types []string, level string) error {
	switch level {
	case telemetry.EventLevelInfo, telemetry.EventLevelWarning, telemetry.EventLevelError:
	default:
		return fmt.Errorf("invalid --events-level %q", level)
	}

	filter := telemetry.FilterByLevel(level)
	if len(types) > 0 {
		byLevel, byType := filter, telemetry.FilterByType(types...)
		filter = func(e telemetry.Event) bool { return byLevel(e) && byType(e) }
	}

	zl := tel.Logger.NewComponentLogger("events").Zerolog()
	tel.Events.Subscribe(func(e telemetry.Event) {
		entry := zl.Info()
		switch e.Level {
		case telemetry.EventLevelWarning:
			entry = zl.Warn()
		case telemetry.EventLevelError:
			entry = zl.Error()
		}
		entry.
			Str("event", e.Type).
			Str("instance_id", e.InstanceID).
			Str("facade", e.Facade).
			Str("operation", e.Operation).
			Fields(e.Data).
			Msg(e.Message)
	}, filter)
	return nil
}

// prime binds the engine and loads its caches.
func (s *session) prime(ctx context.Context) error {
	engine, err := s.inst.Engine(ctx)
	if err != nil {
		return err
	}
	if err := engine.PrimeEngine(ctx); err != nil {
		return err
	}
	log.Info().
		Str("instance", s.inst.Name()).
		Str("id", s.inst.ID()).
		Msg("Engine primed")
	return nil
}

// rebuild destroys the instance and builds a new one from reloaded options.
// The engine library and the journal are kept.
func (s *session) rebuild(cmd *cobra.Command) error {
	ctx := cmd.Context()

	opts, err := loadOptions(cmd)
	if err != nil {
		log.Error().Err(err).Msg("Keeping the running instance")
		return err
	}
	if opts.engine != s.opts.engine || opts.journal != s.opts.journal {
		log.Warn().Msg("Engine and journal changes take effect on restart")
	}
	opts.engine, opts.journal = s.opts.engine, s.opts.journal

	var errs []error
	if s.inst != nil {
		errs = append(errs, s.inst.Destroy(ctx))
		s.inst = nil
	}
	s.opts = opts
	if err := s.build(); err != nil {
		return errors.Join(append(errs, err)...)
	}
	if err := s.prime(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
