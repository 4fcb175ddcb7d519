package provider

import (
	"context"
	"errors"
	"time"

	"github.com/erbridge/erbridge/pkg/dispatch"
	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/native"
	"github.com/erbridge/erbridge/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// facade is the part every capability facade shares: the owning instance
// and the exception side channel of its native object.
type facade struct {
	inst *Instance
	name string
	exc  native.Exceptions
}

// Instance returns the provider the facade belongs to.
func (f *facade) Instance() *Instance {
	return f.inst
}

// invoke runs fn on the dispatcher. A non-zero status is translated using
// the native side channel before the worker is released. Calls made after
// the instance left StateActive fail without reaching the native object.
func (f *facade) invoke(ctx context.Context, op, signature string, params []failure.Parameter, fn func(ctx context.Context) native.Result) (native.Result, error) {
	inst := f.inst
	ctx, span := inst.tel.Tracer.StartFacadeSpan(ctx, inst.id, f.name, op)
	defer span.End()
	start := time.Now()

	if err := inst.requireActive(); err != nil {
		inst.observe(ctx, span, f.name, op, 0, err)
		return native.Result{}, err
	}

	res, err := dispatch.Submit(ctx, inst.dispatcher, func(ctx context.Context) (native.Result, error) {
		r := fn(ctx)
		if r.Status != 0 {
			return r, failure.FromNative(r.Status, f.exc, signature, failure.NewParameters(params...))
		}
		return r, nil
	})
	inst.observe(ctx, span, f.name, op, time.Since(start), err)
	return res, err
}

// status runs a call that only returns a status.
func (f *facade) status(ctx context.Context, op, signature string, params []failure.Parameter, fn func(ctx context.Context) int64) error {
	_, err := f.invoke(ctx, op, signature, params, func(ctx context.Context) native.Result {
		return native.Result{Status: fn(ctx)}
	})
	return err
}

// response runs a call that produces a document.
func (f *facade) response(ctx context.Context, op, signature string, params []failure.Parameter, fn func(ctx context.Context) native.Result) (string, error) {
	res, err := f.invoke(ctx, op, signature, params, fn)
	if err != nil {
		return "", err
	}
	return res.Response, nil
}

// value runs a call that produces a scalar.
func (f *facade) value(ctx context.Context, op, signature string, params []failure.Parameter, fn func(ctx context.Context) native.Result) (int64, error) {
	res, err := f.invoke(ctx, op, signature, params, fn)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// observe records the outcome of a facade call in metrics, the span, the
// event stream and the journal.
func (i *Instance) observe(ctx context.Context, span trace.Span, facadeName, op string, d time.Duration, err error) {
	if err == nil {
		telemetry.RecordSuccess(span)
		i.tel.Metrics.RecordNativeCall(facadeName, op, "ok", d)
		return
	}

	kind := failure.KindOf(err)
	if kind == "" {
		kind = failure.KindInternal
	}
	telemetry.RecordError(span, err)
	span.SetAttributes(telemetry.AttrErrorKind.String(string(kind)))
	if code, ok := failureCode(err); ok {
		span.SetAttributes(telemetry.AttrErrorCode.Int64(code))
	}

	i.tel.Metrics.RecordNativeCall(facadeName, op, "failed", d)
	i.tel.Metrics.RecordFailure(string(kind))
	_ = i.tel.Events.PublishCallFailed(i.id, facadeName, op, string(kind), err)
	i.recordFailure(ctx, facadeName, err)
	i.log.WithOperation(facadeName, op).WithError(err).WithField("kind", string(kind)).Debug("facade call failed")
}

func failureCode(err error) (int64, bool) {
	var f *failure.Failure
	if !errors.As(err, &f) {
		return 0, false
	}
	return f.ErrorCode()
}

// initArgs returns the parameters captured for a failed Init call.
func (i *Instance) initArgs(configID *int64) []failure.Parameter {
	params := []failure.Parameter{
		failure.Param("instanceName", i.name),
		failure.Redacted("settings", i.settings),
	}
	if configID != nil {
		params = append(params, failure.Param("configID", *configID))
	}
	return append(params, failure.Param("verbose", i.verbose))
}

// bind creates and initializes a native object on the dispatcher. The
// caller holds facadeMu and has checked that the instance is Active.
//
// Once admitted, a bind is waited for even if ctx is cancelled: the worker
// creates the object regardless, and only the caller can cache it for
// teardown.
func bind[N native.Exceptions](ctx context.Context, i *Instance, name string, create func(ctx context.Context) (N, error), initialize func(ctx context.Context, obj N) int64, signature string, params []failure.Parameter) (N, error) {
	ctx, span := i.tel.Tracer.StartFacadeSpan(ctx, i.id, name, "init")
	defer span.End()

	if err := ctx.Err(); err != nil {
		var zero N
		err = failure.Internal("facade bind abandoned before submission", err)
		i.observe(ctx, span, name, "init", 0, err)
		return zero, err
	}

	obj, err := dispatch.Submit(context.WithoutCancel(ctx), i.dispatcher, func(ctx context.Context) (N, error) {
		var zero N
		obj, err := create(ctx)
		if err != nil {
			return zero, failure.New(failure.KindEngine, "failed to create native "+name+" object", err)
		}
		if st := initialize(ctx, obj); st != 0 {
			return zero, failure.FromNative(st, obj, signature, failure.NewParameters(params...))
		}
		return obj, nil
	})
	if err != nil {
		i.tel.Metrics.RecordFacadeBind(name, "failed")
		i.observe(ctx, span, name, "init", 0, err)
		return obj, err
	}

	telemetry.RecordSuccess(span)
	i.tel.Metrics.RecordFacadeBind(name, "ok")
	_ = i.tel.Events.PublishFacadeBound(i.id, name)
	i.log.WithField("facade", name).Debug("facade bound")
	return obj, nil
}
