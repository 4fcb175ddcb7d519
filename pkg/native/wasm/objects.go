package wasm

import (
	"context"
	"errors"
	"sync"

	"github.com/erbridge/erbridge/pkg/native"
)

// statusHostFailure is returned when the call never produced an envelope.
const statusHostFailure int64 = -1

// CodeModuleClosed is the exception code reported when the module instance
// is gone. It falls in the unrecoverable range.
const CodeModuleClosed int64 = 8000

// object routes calls to the "<prefix>_<call>" exports and keeps the last
// exception reported for this sub-object.
type object struct {
	bridge *Bridge
	prefix string

	mu      sync.Mutex
	code    int64
	message string
}

func newObject(bridge *Bridge, prefix string) *object {
	return &object{bridge: bridge, prefix: prefix}
}

func (o *object) call(ctx context.Context, name string, args ...any) native.Result {
	env, err := o.bridge.Call(ctx, o.prefix+"_"+name, args...)
	if err != nil {
		code := int64(0)
		if errors.Is(err, ErrModuleClosed) || o.bridge.Closed() {
			code = CodeModuleClosed
		}
		o.setException(code, err.Error())
		return native.Result{Status: statusHostFailure}
	}
	if env.Status != 0 {
		o.setException(env.Code, env.Message)
	}
	return native.Result{Status: env.Status, Response: env.responseText(), Value: env.Value}
}

func (o *object) status(ctx context.Context, name string, args ...any) int64 {
	return o.call(ctx, name, args...).Status
}

func (o *object) setException(code int64, message string) {
	o.mu.Lock()
	o.code, o.message = code, message
	o.mu.Unlock()
}

func (o *object) LastExceptionCode() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code
}

func (o *object) LastException() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.message
}

func (o *object) ClearLastException() {
	o.setException(0, "")
}

type product struct{ *object }

var _ native.Product = (*product)(nil)

func (p *product) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return p.status(ctx, "init", instanceName, settings, verbose)
}
func (p *product) Destroy(ctx context.Context) int64 { return p.status(ctx, "destroy") }
func (p *product) GetLicense(ctx context.Context) native.Result { return p.call(ctx, "get_license") }
func (p *product) GetVersion(ctx context.Context) native.Result { return p.call(ctx, "get_version") }

type config struct{ *object }

var _ native.Config = (*config)(nil)

func (c *config) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return c.status(ctx, "init", instanceName, settings, verbose)
}
func (c *config) Destroy(ctx context.Context) int64 { return c.status(ctx, "destroy") }
func (c *config) Create(ctx context.Context) native.Result { return c.call(ctx, "create") }
func (c *config) Import(ctx context.Context, definition string) native.Result {
	return c.call(ctx, "import", definition)
}
func (c *config) Export(ctx context.Context, handle int64) native.Result {
	return c.call(ctx, "export", handle)
}
func (c *config) Close(ctx context.Context, handle int64) int64 {
	return c.status(ctx, "close", handle)
}
func (c *config) GetDataSources(ctx context.Context, handle int64) native.Result {
	return c.call(ctx, "get_data_sources", handle)
}
func (c *config) AddDataSource(ctx context.Context, handle int64, dataSourceCode string) native.Result {
	return c.call(ctx, "add_data_source", handle, dataSourceCode)
}
func (c *config) DeleteDataSource(ctx context.Context, handle int64, dataSourceCode string) int64 {
	return c.status(ctx, "delete_data_source", handle, dataSourceCode)
}

type configManager struct{ *object }

var _ native.ConfigManager = (*configManager)(nil)

func (m *configManager) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return m.status(ctx, "init", instanceName, settings, verbose)
}
func (m *configManager) Destroy(ctx context.Context) int64 { return m.status(ctx, "destroy") }
func (m *configManager) AddConfig(ctx context.Context, definition, comment string) native.Result {
	return m.call(ctx, "add_config", definition, comment)
}
func (m *configManager) GetConfig(ctx context.Context, configID int64) native.Result {
	return m.call(ctx, "get_config", configID)
}
func (m *configManager) GetConfigs(ctx context.Context) native.Result {
	return m.call(ctx, "get_configs")
}
func (m *configManager) GetDefaultConfigID(ctx context.Context) native.Result {
	return m.call(ctx, "get_default_config_id")
}
func (m *configManager) ReplaceDefaultConfigID(ctx context.Context, currentID, newID int64) int64 {
	return m.status(ctx, "replace_default_config_id", currentID, newID)
}
func (m *configManager) SetDefaultConfigID(ctx context.Context, configID int64) int64 {
	return m.status(ctx, "set_default_config_id", configID)
}

type diagnostic struct{ *object }

var _ native.Diagnostic = (*diagnostic)(nil)

func (d *diagnostic) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return d.status(ctx, "init", instanceName, settings, verbose)
}
func (d *diagnostic) InitWithConfigID(ctx context.Context, instanceName, settings string, configID int64, verbose bool) int64 {
	return d.status(ctx, "init_with_config_id", instanceName, settings, configID, verbose)
}
func (d *diagnostic) Destroy(ctx context.Context) int64 { return d.status(ctx, "destroy") }
func (d *diagnostic) CheckDatastorePerformance(ctx context.Context, seconds int) native.Result {
	return d.call(ctx, "check_datastore_performance", seconds)
}
func (d *diagnostic) GetDatastoreInfo(ctx context.Context) native.Result {
	return d.call(ctx, "get_datastore_info")
}
func (d *diagnostic) GetFeature(ctx context.Context, featureID int64) native.Result {
	return d.call(ctx, "get_feature", featureID)
}
func (d *diagnostic) PurgeRepository(ctx context.Context) int64 {
	return d.status(ctx, "purge_repository")
}
func (d *diagnostic) Reinitialize(ctx context.Context, configID int64) int64 {
	return d.status(ctx, "reinitialize", configID)
}

type engine struct{ *object }

var _ native.Engine = (*engine)(nil)

func (e *engine) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return e.status(ctx, "init", instanceName, settings, verbose)
}
func (e *engine) InitWithConfigID(ctx context.Context, instanceName, settings string, configID int64, verbose bool) int64 {
	return e.status(ctx, "init_with_config_id", instanceName, settings, configID, verbose)
}
func (e *engine) Destroy(ctx context.Context) int64 { return e.status(ctx, "destroy") }
func (e *engine) PrimeEngine(ctx context.Context) int64 { return e.status(ctx, "prime_engine") }
func (e *engine) GetActiveConfigID(ctx context.Context) native.Result {
	return e.call(ctx, "get_active_config_id")
}
func (e *engine) Reinitialize(ctx context.Context, configID int64) int64 {
	return e.status(ctx, "reinitialize", configID)
}
func (e *engine) GetStats(ctx context.Context) native.Result { return e.call(ctx, "get_stats") }

func (e *engine) AddRecord(ctx context.Context, dataSourceCode, recordID, definition string) int64 {
	return e.status(ctx, "add_record", dataSourceCode, recordID, definition)
}
func (e *engine) AddRecordWithInfo(ctx context.Context, dataSourceCode, recordID, definition string, flags uint64) native.Result {
	return e.call(ctx, "add_record_with_info", dataSourceCode, recordID, definition, flags)
}
func (e *engine) DeleteRecord(ctx context.Context, dataSourceCode, recordID string) int64 {
	return e.status(ctx, "delete_record", dataSourceCode, recordID)
}
func (e *engine) DeleteRecordWithInfo(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	return e.call(ctx, "delete_record_with_info", dataSourceCode, recordID, flags)
}
func (e *engine) ReevaluateRecord(ctx context.Context, dataSourceCode, recordID string, flags uint64) int64 {
	return e.status(ctx, "reevaluate_record", dataSourceCode, recordID, flags)
}
func (e *engine) ReevaluateRecordWithInfo(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	return e.call(ctx, "reevaluate_record_with_info", dataSourceCode, recordID, flags)
}
func (e *engine) ReevaluateEntity(ctx context.Context, entityID int64, flags uint64) int64 {
	return e.status(ctx, "reevaluate_entity", entityID, flags)
}
func (e *engine) ReevaluateEntityWithInfo(ctx context.Context, entityID int64, flags uint64) native.Result {
	return e.call(ctx, "reevaluate_entity_with_info", entityID, flags)
}

func (e *engine) GetRecord(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	return e.call(ctx, "get_record", dataSourceCode, recordID, flags)
}
func (e *engine) GetEntityByEntityID(ctx context.Context, entityID int64, flags uint64) native.Result {
	return e.call(ctx, "get_entity_by_entity_id", entityID, flags)
}
func (e *engine) GetEntityByRecordID(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	return e.call(ctx, "get_entity_by_record_id", dataSourceCode, recordID, flags)
}
func (e *engine) SearchByAttributes(ctx context.Context, attributes, searchProfile string, flags uint64) native.Result {
	return e.call(ctx, "search_by_attributes", attributes, searchProfile, flags)
}
func (e *engine) FindPathByEntityID(ctx context.Context, startEntityID, endEntityID int64, maxDegrees int, avoidEntityIDs, requiredDataSources string, flags uint64) native.Result {
	return e.call(ctx, "find_path_by_entity_id", startEntityID, endEntityID, maxDegrees, avoidEntityIDs, requiredDataSources, flags)
}
func (e *engine) FindNetworkByEntityID(ctx context.Context, entityIDs string, maxDegrees, buildOutDegrees, buildOutMaxEntities int, flags uint64) native.Result {
	return e.call(ctx, "find_network_by_entity_id", entityIDs, maxDegrees, buildOutDegrees, buildOutMaxEntities, flags)
}
func (e *engine) WhyEntities(ctx context.Context, entityID1, entityID2 int64, flags uint64) native.Result {
	return e.call(ctx, "why_entities", entityID1, entityID2, flags)
}
func (e *engine) WhyRecords(ctx context.Context, dataSourceCode1, recordID1, dataSourceCode2, recordID2 string, flags uint64) native.Result {
	return e.call(ctx, "why_records", dataSourceCode1, recordID1, dataSourceCode2, recordID2, flags)
}
func (e *engine) HowEntity(ctx context.Context, entityID int64, flags uint64) native.Result {
	return e.call(ctx, "how_entity", entityID, flags)
}
func (e *engine) GetVirtualEntity(ctx context.Context, recordKeys string, flags uint64) native.Result {
	return e.call(ctx, "get_virtual_entity", recordKeys, flags)
}

func (e *engine) ExportJSONEntityReport(ctx context.Context, flags uint64) native.Result {
	return e.call(ctx, "export_json_entity_report", flags)
}
func (e *engine) FetchNext(ctx context.Context, exportHandle int64) native.Result {
	return e.call(ctx, "fetch_next", exportHandle)
}
func (e *engine) CloseExport(ctx context.Context, exportHandle int64) int64 {
	return e.status(ctx, "close_export", exportHandle)
}

func (e *engine) CountRedoRecords(ctx context.Context) native.Result {
	return e.call(ctx, "count_redo_records")
}
func (e *engine) GetRedoRecord(ctx context.Context) native.Result {
	return e.call(ctx, "get_redo_record")
}
func (e *engine) ProcessRedoRecord(ctx context.Context, redoRecord string) int64 {
	return e.status(ctx, "process_redo_record", redoRecord)
}
func (e *engine) ProcessRedoRecordWithInfo(ctx context.Context, redoRecord string, flags uint64) native.Result {
	return e.call(ctx, "process_redo_record_with_info", redoRecord, flags)
}
