// Package native defines the call boundary to the entity-resolution engine.
//
// Every engine capability is exposed as a sub-object with a fixed catalog of
// calls taking primitive arguments. Calls return a bare status or a Result.
// A non-zero status means the call failed; the engine's code and message for
// the failure are then available through the object's Exceptions side
// channel until it is cleared.
//
// Implementations are not required to be safe for concurrent use. Callers
// funnel every call through a dispatch pool.
package native

import (
	"context"
)

// Result is the outcome of a call that produces output.
type Result struct {
	// Status is zero on success.
	Status int64

	// Response is the JSON document produced by the call, if any.
	Response string

	// Value carries scalar output such as handles, counts and IDs.
	Value int64
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Status == 0
}

// Exceptions is the last-error side channel each sub-object exposes.
type Exceptions interface {
	LastExceptionCode() int64
	LastException() string
	ClearLastException()
}

// Product reports version and license information.
type Product interface {
	Exceptions
	Init(ctx context.Context, instanceName, settings string, verbose bool) int64
	Destroy(ctx context.Context) int64
	GetLicense(ctx context.Context) Result
	GetVersion(ctx context.Context) Result
}

// Config edits in-memory configuration documents addressed by handle.
type Config interface {
	Exceptions
	Init(ctx context.Context, instanceName, settings string, verbose bool) int64
	Destroy(ctx context.Context) int64
	Create(ctx context.Context) Result
	Import(ctx context.Context, definition string) Result
	Export(ctx context.Context, handle int64) Result
	Close(ctx context.Context, handle int64) int64
	GetDataSources(ctx context.Context, handle int64) Result
	AddDataSource(ctx context.Context, handle int64, dataSourceCode string) Result
	DeleteDataSource(ctx context.Context, handle int64, dataSourceCode string) int64
}

// ConfigManager manages the registry of persisted configurations.
type ConfigManager interface {
	Exceptions
	Init(ctx context.Context, instanceName, settings string, verbose bool) int64
	Destroy(ctx context.Context) int64
	AddConfig(ctx context.Context, definition, comment string) Result
	GetConfig(ctx context.Context, configID int64) Result
	GetConfigs(ctx context.Context) Result
	GetDefaultConfigID(ctx context.Context) Result
	ReplaceDefaultConfigID(ctx context.Context, currentID, newID int64) int64
	SetDefaultConfigID(ctx context.Context, configID int64) int64
}

// Diagnostic inspects and maintains the datastore.
type Diagnostic interface {
	Exceptions
	Init(ctx context.Context, instanceName, settings string, verbose bool) int64
	InitWithConfigID(ctx context.Context, instanceName, settings string, configID int64, verbose bool) int64
	Destroy(ctx context.Context) int64
	CheckDatastorePerformance(ctx context.Context, seconds int) Result
	GetDatastoreInfo(ctx context.Context) Result
	GetFeature(ctx context.Context, featureID int64) Result
	PurgeRepository(ctx context.Context) int64
	Reinitialize(ctx context.Context, configID int64) int64
}

// Engine is the entity-resolution engine proper. Modify calls come in a
// plain form returning a status and a WithInfo form returning the affected
// entities.
type Engine interface {
	Exceptions
	Init(ctx context.Context, instanceName, settings string, verbose bool) int64
	InitWithConfigID(ctx context.Context, instanceName, settings string, configID int64, verbose bool) int64
	Destroy(ctx context.Context) int64
	PrimeEngine(ctx context.Context) int64
	GetActiveConfigID(ctx context.Context) Result
	Reinitialize(ctx context.Context, configID int64) int64
	GetStats(ctx context.Context) Result

	AddRecord(ctx context.Context, dataSourceCode, recordID, definition string) int64
	AddRecordWithInfo(ctx context.Context, dataSourceCode, recordID, definition string, flags uint64) Result
	DeleteRecord(ctx context.Context, dataSourceCode, recordID string) int64
	DeleteRecordWithInfo(ctx context.Context, dataSourceCode, recordID string, flags uint64) Result
	ReevaluateRecord(ctx context.Context, dataSourceCode, recordID string, flags uint64) int64
	ReevaluateRecordWithInfo(ctx context.Context, dataSourceCode, recordID string, flags uint64) Result
	ReevaluateEntity(ctx context.Context, entityID int64, flags uint64) int64
	ReevaluateEntityWithInfo(ctx context.Context, entityID int64, flags uint64) Result

	GetRecord(ctx context.Context, dataSourceCode, recordID string, flags uint64) Result
	GetEntityByEntityID(ctx context.Context, entityID int64, flags uint64) Result
	GetEntityByRecordID(ctx context.Context, dataSourceCode, recordID string, flags uint64) Result
	SearchByAttributes(ctx context.Context, attributes, searchProfile string, flags uint64) Result
	FindPathByEntityID(ctx context.Context, startEntityID, endEntityID int64, maxDegrees int, avoidEntityIDs, requiredDataSources string, flags uint64) Result
	FindNetworkByEntityID(ctx context.Context, entityIDs string, maxDegrees, buildOutDegrees, buildOutMaxEntities int, flags uint64) Result
	WhyEntities(ctx context.Context, entityID1, entityID2 int64, flags uint64) Result
	WhyRecords(ctx context.Context, dataSourceCode1, recordID1, dataSourceCode2, recordID2 string, flags uint64) Result
	HowEntity(ctx context.Context, entityID int64, flags uint64) Result
	GetVirtualEntity(ctx context.Context, recordKeys string, flags uint64) Result

	ExportJSONEntityReport(ctx context.Context, flags uint64) Result
	FetchNext(ctx context.Context, exportHandle int64) Result
	CloseExport(ctx context.Context, exportHandle int64) int64

	CountRedoRecords(ctx context.Context) Result
	GetRedoRecord(ctx context.Context) Result
	ProcessRedoRecord(ctx context.Context, redoRecord string) int64
	ProcessRedoRecordWithInfo(ctx context.Context, redoRecord string, flags uint64) Result
}

// Library creates native sub-objects. Each New call returns an unbound
// object; the caller initializes it with Init before use.
type Library interface {
	NewProduct(ctx context.Context) (Product, error)
	NewConfig(ctx context.Context) (Config, error)
	NewConfigManager(ctx context.Context) (ConfigManager, error)
	NewDiagnostic(ctx context.Context) (Diagnostic, error)
	NewEngine(ctx context.Context) (Engine, error)

	// Close releases the library. Objects created from it must not be used
	// afterwards.
	Close(ctx context.Context) error
}
