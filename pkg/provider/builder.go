package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/erbridge/erbridge/pkg/dispatch"
	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/native"
	"github.com/erbridge/erbridge/pkg/stores"
	"github.com/erbridge/erbridge/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// DefaultInstanceName is used when the builder is not given a name.
	DefaultInstanceName = "erbridge"

	// DefaultWorkers is the dispatcher size when none is configured.
	DefaultWorkers = 1

	// SettingsEnv supplies the settings when none are given explicitly.
	SettingsEnv = "ERBRIDGE_SETTINGS"
)

// BootstrapSettings is used when neither the builder nor SettingsEnv
// provide settings.
const BootstrapSettings = `{"PIPELINE":{"CONFIGPATH":"/etc/opt/erbridge","RESOURCEPATH":"/opt/erbridge/resources","SUPPORTPATH":"/opt/erbridge/data"},"SQL":{"CONNECTION":"sqlite3://na:na@/var/opt/erbridge/sqlite/G2C.db"}}`

var optionsValidate = validator.New()

// options are the validated builder values.
type options struct {
	InstanceName string `validate:"required"`
	Settings     string `validate:"required,json"`
	Verbose      bool
	ConfigID     *int64
	Workers      int `validate:"gte=1"`
}

// Builder collects the configuration of a new Instance.
type Builder struct {
	instanceName string
	settings     string
	verbose      bool
	configID     *int64
	workers      int

	library   native.Library
	telemetry *telemetry.Telemetry
	journal   stores.Journal
}

// NewBuilder returns a builder with the default instance name and a single
// worker.
func NewBuilder() *Builder {
	return &Builder{
		instanceName: DefaultInstanceName,
		workers:      DefaultWorkers,
	}
}

// InstanceName sets the name passed to every native Init call.
func (b *Builder) InstanceName(name string) *Builder {
	b.instanceName = name
	return b
}

// Settings sets the engine settings document. A blank value falls back to
// SettingsEnv and then to BootstrapSettings.
func (b *Builder) Settings(settings string) *Builder {
	b.settings = settings
	return b
}

// Verbose enables verbose engine logging.
func (b *Builder) Verbose(verbose bool) *Builder {
	b.verbose = verbose
	return b
}

// ConfigID pins the engine and diagnostic facades to a configuration
// instead of the registry default.
func (b *Builder) ConfigID(id int64) *Builder {
	b.configID = &id
	return b
}

// Workers sets the dispatcher size. It must be at least 1.
func (b *Builder) Workers(n int) *Builder {
	b.workers = n
	return b
}

// Library sets the native library the facades bind to. Required.
func (b *Builder) Library(lib native.Library) *Builder {
	b.library = lib
	return b
}

// Telemetry attaches logging, tracing, metrics and events.
func (b *Builder) Telemetry(t *telemetry.Telemetry) *Builder {
	b.telemetry = t
	return b
}

// Journal attaches a sink for failures and lifecycle transitions.
func (b *Builder) Journal(j stores.Journal) *Builder {
	b.journal = j
	return b
}

func (b *Builder) resolveSettings() string {
	if strings.TrimSpace(b.settings) != "" {
		return b.settings
	}
	if env := strings.TrimSpace(os.Getenv(SettingsEnv)); env != "" {
		return env
	}
	return BootstrapSettings
}

func (b *Builder) options() (options, error) {
	opts := options{
		InstanceName: b.instanceName,
		Settings:     b.resolveSettings(),
		Verbose:      b.verbose,
		ConfigID:     b.configID,
		Workers:      b.workers,
	}
	if err := optionsValidate.Struct(opts); err != nil {
		return opts, failure.InvalidArgument(describeValidation(err), err)
	}
	if b.library == nil {
		return opts, failure.InvalidArgument("a native library is required", nil)
	}
	return opts, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid provider options"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "json":
		return fmt.Sprintf("%s is not valid JSON", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// Build creates the Instance and makes it the active one. It fails with an
// invalid-argument failure for bad options and with an illegal-state failure
// while another instance is Active or Destroying.
func (b *Builder) Build() (*Instance, error) {
	opts, err := b.options()
	if err != nil {
		return nil, err
	}

	tel := b.telemetry
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}
	if tel.Logger == nil {
		withLogger := *tel
		withLogger.Logger = telemetry.NewNopLogger()
		tel = &withLogger
	}

	active.mu.Lock()
	if cur := active.instance; cur != nil {
		if st := cur.State(); st != StateDestroyed {
			active.mu.Unlock()
			return nil, failure.IllegalState(fmt.Sprintf("provider instance %s is %s", cur.id, st))
		}
	}

	id := uuid.New().String()
	logger := tel.Logger.NewComponentLogger("provider").WithInstance(id, opts.InstanceName)

	d, err := dispatch.New(opts.Workers,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(tel.Metrics),
		dispatch.WithName(opts.InstanceName),
	)
	if err != nil {
		active.mu.Unlock()
		return nil, err
	}

	inst := &Instance{
		id:         id,
		name:       opts.InstanceName,
		settings:   opts.Settings,
		verbose:    opts.Verbose,
		configID:   opts.ConfigID,
		workers:    opts.Workers,
		state:      StateActive,
		destroyed:  make(chan struct{}),
		dispatcher: d,
		library:    b.library,
		tel:        tel,
		journal:    b.journal,
		log:        logger,
		builtAt:    time.Now(),
	}
	active.instance = inst
	active.mu.Unlock()

	tel.Metrics.RecordInstanceBuilt()
	tel.Metrics.SetLifecycleState(inst.name, StateActive.String())
	_ = tel.Events.PublishInstanceBuilt(inst.id, inst.name, inst.workers)
	inst.recordLifecycle(stores.LifecycleBuilt, "instance built", inst.describe())

	logger.Infof("provider instance built with %d workers", inst.workers)
	return inst, nil
}

// describe renders the non-secret build options for the journal.
func (i *Instance) describe() map[string]any {
	d := map[string]any{
		"workers": i.workers,
		"verbose": i.verbose,
	}
	if i.configID != nil {
		d["config_id"] = *i.configID
	}
	return d
}

func marshalDetails(details map[string]any) *string {
	if len(details) == 0 {
		return nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
