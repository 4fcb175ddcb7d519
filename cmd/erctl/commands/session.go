package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/erbridge/erbridge/pkg/config"
	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/flags"
	"github.com/erbridge/erbridge/pkg/native"
	"github.com/erbridge/erbridge/pkg/native/wasm"
	"github.com/erbridge/erbridge/pkg/provider"
	"github.com/erbridge/erbridge/pkg/stores"
	"github.com/erbridge/erbridge/pkg/telemetry"
	"github.com/spf13/cobra"
)

// openLibrary loads the engine module. Tests replace it with an in-memory
// library.
var openLibrary = func(ctx context.Context, manifest string, logger *telemetry.Logger) (native.Library, error) {
	if manifest == "" {
		return nil, errors.New("no engine manifest: set --engine or engine in the config file")
	}
	return wasm.Open(ctx, manifest, &wasm.HostConfig{Logger: logger})
}

// options is the merged view of the config file and command-line flags.
// Flags that were set explicitly win over the file.
type options struct {
	instance  string
	settings  string
	verbose   bool
	configID  int64
	workers   int
	engine    string
	journal   string
	redact    bool
	telemetry *telemetry.Config
	watched   []string
}

func loadOptions(cmd *cobra.Command) (*options, error) {
	opts := &options{telemetry: telemetry.DefaultConfig()}
	changed := cmd.Flags().Changed

	if configPath != "" {
		file, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		settings, err := file.ResolveSettings()
		if err != nil {
			return nil, err
		}
		opts.instance = file.Instance
		opts.settings = settings
		opts.verbose = file.Verbose
		opts.configID = file.ConfigID
		opts.workers = file.Workers
		opts.engine = file.Engine
		opts.journal = file.Journal
		opts.redact = file.Redact
		opts.telemetry = file.ApplyTelemetry(opts.telemetry)
		opts.watched = append(opts.watched, configPath)
		if file.SettingsFile != "" && file.Settings == "" {
			opts.watched = append(opts.watched, file.SettingsFile)
		}
	}

	if changed("settings") {
		settings, path, err := readSettings(settingsArg)
		if err != nil {
			return nil, err
		}
		opts.settings = settings
		if path != "" {
			opts.watched = append(opts.watched, path)
		}
	}
	if changed("instance") {
		opts.instance = instanceName
	}
	if changed("verbose") {
		opts.verbose = verbose
	}
	if changed("config-id") {
		opts.configID = configID
	}
	if changed("workers") {
		opts.workers = workers
	}
	if changed("engine") {
		opts.engine = enginePath
	}
	if changed("journal") {
		opts.journal = journalPath
	}
	if changed("redact") {
		opts.redact = redact
	}

	if opts.settings != "" {
		if err := config.NewSchemaRegistry().ValidateSettings(cmd.Context(), opts.settings); err != nil {
			return nil, fmt.Errorf("invalid engine settings: %w", err)
		}
	}
	return opts, nil
}

// readSettings accepts an inline JSON document or a path to one. It returns
// the path when the settings came from a file.
func readSettings(arg string) (string, string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" || strings.HasPrefix(arg, "{") {
		return arg, "", nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("failed to read settings file: %w", err)
	}
	return string(data), arg, nil
}

// session owns everything a command needs to talk to the engine.
type session struct {
	opts  *options
	tel   *telemetry.Telemetry
	lib   native.Library
	store *stores.SQLiteStore
	inst  *provider.Instance
}

// openSession loads options, telemetry, the journal and the engine library
// and builds the provider instance.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()

	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	if opts.redact {
		// The redaction toggle is read once, before the first failure.
		if err := os.Setenv(failure.RedactEnv, "1"); err != nil {
			return nil, err
		}
	}

	tel, err := telemetry.NewTelemetry(opts.telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s := &session{opts: opts, tel: tel}

	if opts.journal != "" {
		s.store, err = stores.Open(ctx, opts.journal)
		if err != nil {
			_ = s.close(ctx)
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
	}

	s.lib, err = openLibrary(ctx, opts.engine, tel.Logger.NewComponentLogger("engine"))
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}

	if err := s.build(); err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) build() error {
	b := provider.NewBuilder().
		Settings(s.opts.settings).
		Verbose(s.opts.verbose).
		Library(s.lib).
		Telemetry(s.tel)
	if s.opts.instance != "" {
		b.InstanceName(s.opts.instance)
	}
	if s.opts.workers != 0 {
		b.Workers(s.opts.workers)
	}
	if s.opts.configID != 0 {
		b.ConfigID(s.opts.configID)
	}
	if s.store != nil {
		b.Journal(s.store)
	}

	inst, err := b.Build()
	if err != nil {
		return err
	}
	s.inst = inst
	return nil
}

// close destroys the instance, then releases the library, the journal and
// telemetry.
func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.inst != nil {
		errs = append(errs, s.inst.Destroy(ctx))
	}
	if s.lib != nil {
		errs = append(errs, s.lib.Close(ctx))
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	errs = append(errs, s.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// withSession runs fn against a fresh session and always closes it. The
// command runs as a traced operation named after its command path, and
// cmd.Context() carries the session's telemetry while fn runs.
func withSession(cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}

	op := telemetry.StartOperation(s.tel.WithContext(cmd.Context()), cmd.CommandPath())
	cmd.SetContext(op.Ctx)
	defer func() {
		op.End(err)
		zl := op.Logger.Zerolog()
		zl.Debug().Err(err).Dur("duration", op.Timer.Duration()).Msg("Command finished")
		err = errors.Join(err, s.close(context.WithoutCancel(op.Ctx)))
	}()
	return fn(s)
}

// printDocument writes an engine JSON document indented, or as is when it
// is not JSON.
func printDocument(w io.Writer, doc string) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(doc), "", "  "); err != nil {
		_, err = fmt.Fprintln(w, doc)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// addFlagsOption registers --flags on cmd.
func addFlagsOption(cmd *cobra.Command, expr *string, def string) {
	cmd.Flags().StringVar(expr, "flags", def, "flag expression, e.g. 'ENTITY_DEFAULT_FLAGS | WITH_INFO'")
}

func parseFlagsOption(expr string) (uint64, error) {
	raw, err := flags.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid --flags: %w", err)
	}
	return raw, nil
}
