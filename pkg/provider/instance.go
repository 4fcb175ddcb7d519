package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erbridge/erbridge/pkg/dispatch"
	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/native"
	"github.com/erbridge/erbridge/pkg/stores"
	"github.com/erbridge/erbridge/pkg/telemetry"
)

// active is the process-wide slot holding the current instance.
var active struct {
	mu       sync.Mutex
	instance *Instance
}

// Instance is the provider: it owns the dispatcher and the lazily bound
// facades. At most one Instance is Active or Destroying per process.
type Instance struct {
	id       string
	name     string
	settings string
	verbose  bool
	workers  int

	// stateMu guards state and configID.
	stateMu   sync.RWMutex
	state     State
	configID  *int64
	destroyed chan struct{}

	dispatcher *dispatch.Dispatcher
	library    native.Library

	// facadeMu serializes binding and teardown of the facades below.
	facadeMu      sync.Mutex
	product       *Product
	config        *Config
	configManager *ConfigManager
	diagnostic    *Diagnostic
	engine        *Engine

	tel     *telemetry.Telemetry
	journal stores.Journal
	log     *telemetry.Logger
	builtAt time.Time
}

// GetActive returns the active instance, or nil when there is none. While
// the current instance is being destroyed it blocks until destruction
// finishes, then clears the slot and returns nil.
func GetActive() *Instance {
	active.mu.Lock()
	inst := active.instance
	if inst == nil {
		active.mu.Unlock()
		return nil
	}

	switch inst.State() {
	case StateActive:
		active.mu.Unlock()
		return inst
	case StateDestroying:
		active.mu.Unlock()
		<-inst.destroyed
		active.mu.Lock()
	}

	if active.instance == inst {
		active.instance = nil
	}
	active.mu.Unlock()
	return nil
}

// ID returns the instance's unique ID.
func (i *Instance) ID() string { return i.id }

// Name returns the instance name passed to the engine.
func (i *Instance) Name() string { return i.name }

// Settings returns the resolved settings document.
func (i *Instance) Settings() string { return i.settings }

// Verbose reports whether verbose engine logging was requested.
func (i *Instance) Verbose() bool { return i.verbose }

// Workers returns the dispatcher size.
func (i *Instance) Workers() int { return i.workers }

// ConfigID returns the explicit configuration ID, if one is set.
func (i *Instance) ConfigID() (int64, bool) {
	i.stateMu.RLock()
	defer i.stateMu.RUnlock()
	if i.configID == nil {
		return 0, false
	}
	return *i.configID, true
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.stateMu.RLock()
	defer i.stateMu.RUnlock()
	return i.state
}

// Done is closed once the instance reaches StateDestroyed.
func (i *Instance) Done() <-chan struct{} {
	return i.destroyed
}

func (i *Instance) requireActive() error {
	if st := i.State(); st != StateActive {
		return failure.IllegalState(fmt.Sprintf("provider instance %s is %s", i.id, st))
	}
	return nil
}

// Destroy drains the dispatcher, tears down every bound facade and moves
// the instance to StateDestroyed. It is a no-op unless the instance is
// Active. Teardown failures are returned joined; the instance still ends up
// destroyed.
func (i *Instance) Destroy(ctx context.Context) error {
	i.stateMu.Lock()
	if i.state != StateActive {
		i.stateMu.Unlock()
		return nil
	}
	i.state = StateDestroying
	i.stateMu.Unlock()

	start := time.Now()
	ctx, span := i.tel.Tracer.StartLifecycleSpan(ctx, i.id, "destroy")
	defer span.End()

	i.tel.Metrics.SetLifecycleState(i.name, StateDestroying.String())
	_ = i.tel.Events.PublishInstanceDestroying(i.id)
	i.recordLifecycle(stores.LifecycleDestroying, "instance destroying", nil)
	i.log.Debug("destroying provider instance")

	i.dispatcher.Shutdown()
	// Admitted native calls are never interrupted.
	_ = i.dispatcher.Wait(context.WithoutCancel(ctx))

	err := i.teardown(ctx)

	i.stateMu.Lock()
	i.state = StateDestroyed
	close(i.destroyed)
	i.stateMu.Unlock()

	active.mu.Lock()
	if active.instance == i {
		active.instance = nil
	}
	active.mu.Unlock()

	elapsed := time.Since(start)
	i.tel.Metrics.SetLifecycleState(i.name, StateDestroyed.String())
	_ = i.tel.Events.PublishInstanceDestroyed(i.id, elapsed, err)

	message := "instance destroyed"
	if err != nil {
		message = "instance destroyed with teardown errors: " + err.Error()
		telemetry.RecordError(span, err)
		i.log.WithError(err).Warn("provider instance destroyed with teardown errors")
	} else {
		telemetry.RecordSuccess(span)
		i.log.Infof("provider instance destroyed in %s", elapsed)
	}
	i.recordLifecycle(stores.LifecycleDestroyed, message, map[string]any{"duration_ms": elapsed.Milliseconds()})

	return err
}

type destroyer interface {
	native.Exceptions
	Destroy(ctx context.Context) int64
}

// teardown destroys the bound native objects, engine first and product
// last. It runs after the dispatcher has drained, so nothing else touches
// the objects.
func (i *Instance) teardown(ctx context.Context) error {
	i.facadeMu.Lock()
	defer i.facadeMu.Unlock()

	type bound struct {
		name string
		obj  destroyer
	}
	var order []bound
	if i.engine != nil {
		order = append(order, bound{FacadeEngine, i.engine.native})
	}
	if i.diagnostic != nil {
		order = append(order, bound{FacadeDiagnostic, i.diagnostic.native})
	}
	if i.configManager != nil {
		order = append(order, bound{FacadeConfigManager, i.configManager.native})
	}
	if i.config != nil {
		order = append(order, bound{FacadeConfig, i.config.native})
	}
	if i.product != nil {
		order = append(order, bound{FacadeProduct, i.product.native})
	}

	var errs []error
	for _, b := range order {
		status := b.obj.Destroy(ctx)
		if err := failure.FromNative(status, b.obj, "destroy()", nil); err != nil {
			i.log.WithOperation(b.name, "destroy").WithError(err).Warn("native teardown failed")
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// Reinitialize points the engine, and the diagnostic facade when it is
// bound, at configID. Facades bound later use it too.
func (i *Instance) Reinitialize(ctx context.Context, configID int64) error {
	engine, err := i.Engine(ctx)
	if err != nil {
		return err
	}
	if err := engine.reinitialize(ctx, configID); err != nil {
		return err
	}

	// A diagnostic bind either finished before this point and is
	// reinitialized below, or starts after it and sees the new ID.
	i.facadeMu.Lock()
	i.stateMu.Lock()
	i.configID = &configID
	i.stateMu.Unlock()
	diagnostic := i.diagnostic
	i.facadeMu.Unlock()

	if diagnostic != nil {
		if err := diagnostic.reinitialize(ctx, configID); err != nil {
			return err
		}
	}

	_ = i.tel.Events.PublishReinitialized(i.id, configID)
	i.recordLifecycle(stores.LifecycleReinitialized, fmt.Sprintf("reinitialized with config %d", configID), map[string]any{"config_id": configID})
	i.log.Infof("reinitialized with config %d", configID)
	return nil
}

// ActiveConfigID returns the configuration the engine is running with.
func (i *Instance) ActiveConfigID(ctx context.Context) (int64, error) {
	engine, err := i.Engine(ctx)
	if err != nil {
		return 0, err
	}
	return engine.GetActiveConfigID(ctx)
}

func (i *Instance) recordLifecycle(state stores.LifecycleState, message string, details map[string]any) {
	if i.journal == nil {
		return
	}
	rec := &stores.LifecycleRecord{
		InstanceID: i.id,
		State:      state,
		Message:    message,
		Details:    marshalDetails(details),
		Timestamp:  time.Now(),
	}
	if err := i.journal.RecordLifecycle(context.Background(), rec); err != nil {
		i.log.WithError(err).Warn("failed to journal lifecycle transition")
	}
}

func (i *Instance) recordFailure(ctx context.Context, facade string, err error) {
	if i.journal == nil {
		return
	}
	if jerr := i.journal.RecordFailure(context.WithoutCancel(ctx), stores.NewFailureRecord(i.id, facade, err)); jerr != nil {
		i.log.WithError(jerr).Warn("failed to journal failure")
	}
}
