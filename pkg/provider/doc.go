// Package provider is the entry point of the SDK.
//
// A Builder creates the process-wide Instance. The instance owns a
// dispatch.Dispatcher and binds five facades lazily, each on first request:
//
//	Product        version and license
//	Config         in-memory configuration documents
//	ConfigManager  the registry of persisted configurations
//	Diagnostic     datastore inspection and maintenance
//	Engine         records, entities, search, export and redo
//
// Every facade call runs on the dispatcher and returns a *failure.Failure
// when the engine reports a non-zero status. Calls made after Destroy fail
// with an illegal-state failure without reaching the engine.
//
// # Lifecycle
//
//	Active --Destroy--> Destroying --drained, facades torn down--> Destroyed
//
// Only one instance may be Active or Destroying at a time. Build fails with
// an illegal-state failure until the previous instance is Destroyed.
// GetActive returns the active instance, waiting out a destruction in
// progress.
//
// # Usage Example
//
//	inst, err := provider.NewBuilder().
//	    InstanceName("resolver").
//	    Workers(4).
//	    Library(lib).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer inst.Destroy(ctx)
//
//	engine, err := inst.Engine(ctx)
//	if err != nil {
//	    return err
//	}
//	info, err := engine.AddRecord(ctx, "CUSTOMERS", "1001", record, flags.WithInfo.Bits())
package provider
