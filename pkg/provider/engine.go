package provider

import (
	"context"
	"encoding/json"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/flags"
	"github.com/erbridge/erbridge/pkg/native"
)

// ExportHandle addresses an open entity export. It must be closed with
// CloseExport.
type ExportHandle int64

// RecordKey identifies a record by data source and record ID.
type RecordKey struct {
	DataSourceCode string `json:"DATA_SOURCE"`
	RecordID       string `json:"RECORD_ID"`
}

// Engine adds, resolves and queries records and entities.
//
// Every call accepts a flag mask. Bits outside the call's usage group are
// dropped before the call reaches the engine. For modify calls and redo
// processing, flags.WithInfo selects the variant that returns a document
// describing the affected entities; without it those calls return "".
type Engine struct {
	facade
	native native.Engine
}

// Engine returns the engine facade, binding it on first use.
func (i *Instance) Engine(ctx context.Context) (*Engine, error) {
	i.facadeMu.Lock()
	defer i.facadeMu.Unlock()

	if err := i.requireActive(); err != nil {
		return nil, err
	}
	if i.engine != nil {
		return i.engine, nil
	}

	configID := i.explicitConfigID()
	signature := "init(instanceName, settings, verbose)"
	if configID != nil {
		signature = "initWithConfigID(instanceName, settings, configID, verbose)"
	}

	obj, err := bind(ctx, i, FacadeEngine, i.library.NewEngine,
		func(ctx context.Context, e native.Engine) int64 {
			if configID != nil {
				return e.InitWithConfigID(ctx, i.name, i.settings, *configID, i.verbose)
			}
			return e.Init(ctx, i.name, i.settings, i.verbose)
		},
		signature, i.initArgs(configID))
	if err != nil {
		return nil, err
	}

	i.engine = &Engine{facade: facade{inst: i, name: FacadeEngine, exc: obj}, native: obj}
	return i.engine, nil
}

func flagsParam(raw uint64) failure.Parameter {
	return failure.Param("flags", flags.Format(raw))
}

// modify runs the plain or the WithInfo variant of a modify call.
func (e *Engine) modify(ctx context.Context, op, signature string, params []failure.Parameter, raw uint64, group flags.UsageGroup, plain func(ctx context.Context) int64, info func(ctx context.Context, downstream uint64) native.Result) (string, error) {
	if !flags.HasWithInfo(raw) {
		return "", e.status(ctx, op, signature, params, plain)
	}
	downstream := flags.Downstream(group, raw)
	return e.response(ctx, op, signature, params, func(ctx context.Context) native.Result {
		return info(ctx, downstream)
	})
}

// PrimeEngine loads the engine's caches ahead of the first call.
func (e *Engine) PrimeEngine(ctx context.Context) error {
	return e.status(ctx, "prime_engine", "primeEngine()", nil, func(ctx context.Context) int64 {
		return e.native.PrimeEngine(ctx)
	})
}

// GetActiveConfigID returns the configuration the engine runs with.
func (e *Engine) GetActiveConfigID(ctx context.Context) (int64, error) {
	return e.value(ctx, "get_active_config_id", "getActiveConfigID()", nil, func(ctx context.Context) native.Result {
		return e.native.GetActiveConfigID(ctx)
	})
}

// GetStats returns and resets the engine's workload statistics.
func (e *Engine) GetStats(ctx context.Context) (string, error) {
	return e.response(ctx, "get_stats", "getStats()", nil, func(ctx context.Context) native.Result {
		return e.native.GetStats(ctx)
	})
}

func (e *Engine) reinitialize(ctx context.Context, configID int64) error {
	params := []failure.Parameter{failure.Param("configID", configID)}
	return e.status(ctx, "reinitialize", "reinitialize(configID)", params, func(ctx context.Context) int64 {
		return e.native.Reinitialize(ctx, configID)
	})
}

// AddRecord loads or replaces a record.
func (e *Engine) AddRecord(ctx context.Context, dataSourceCode, recordID, definition string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("dataSourceCode", dataSourceCode),
		failure.Param("recordID", recordID),
		failure.Redacted("recordDefinition", definition),
		flagsParam(fl),
	}
	return e.modify(ctx, "add_record", "addRecord(dataSourceCode, recordID, recordDefinition, flags)", params, fl, flags.GroupModify,
		func(ctx context.Context) int64 {
			return e.native.AddRecord(ctx, dataSourceCode, recordID, definition)
		},
		func(ctx context.Context, downstream uint64) native.Result {
			return e.native.AddRecordWithInfo(ctx, dataSourceCode, recordID, definition, downstream)
		})
}

// DeleteRecord removes a record.
func (e *Engine) DeleteRecord(ctx context.Context, dataSourceCode, recordID string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("dataSourceCode", dataSourceCode),
		failure.Param("recordID", recordID),
		flagsParam(fl),
	}
	return e.modify(ctx, "delete_record", "deleteRecord(dataSourceCode, recordID, flags)", params, fl, flags.GroupModify,
		func(ctx context.Context) int64 {
			return e.native.DeleteRecord(ctx, dataSourceCode, recordID)
		},
		func(ctx context.Context, downstream uint64) native.Result {
			return e.native.DeleteRecordWithInfo(ctx, dataSourceCode, recordID, downstream)
		})
}

// ReevaluateRecord re-resolves the entity a record belongs to.
func (e *Engine) ReevaluateRecord(ctx context.Context, dataSourceCode, recordID string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("dataSourceCode", dataSourceCode),
		failure.Param("recordID", recordID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupModify, fl)
	return e.modify(ctx, "reevaluate_record", "reevaluateRecord(dataSourceCode, recordID, flags)", params, fl, flags.GroupModify,
		func(ctx context.Context) int64 {
			return e.native.ReevaluateRecord(ctx, dataSourceCode, recordID, downstream)
		},
		func(ctx context.Context, downstream uint64) native.Result {
			return e.native.ReevaluateRecordWithInfo(ctx, dataSourceCode, recordID, downstream)
		})
}

// ReevaluateEntity re-resolves an entity.
func (e *Engine) ReevaluateEntity(ctx context.Context, entityID int64, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("entityID", entityID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupModify, fl)
	return e.modify(ctx, "reevaluate_entity", "reevaluateEntity(entityID, flags)", params, fl, flags.GroupModify,
		func(ctx context.Context) int64 {
			return e.native.ReevaluateEntity(ctx, entityID, downstream)
		},
		func(ctx context.Context, downstream uint64) native.Result {
			return e.native.ReevaluateEntityWithInfo(ctx, entityID, downstream)
		})
}

// GetRecord returns a record.
func (e *Engine) GetRecord(ctx context.Context, dataSourceCode, recordID string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("dataSourceCode", dataSourceCode),
		failure.Param("recordID", recordID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupRecord, fl)
	return e.response(ctx, "get_record", "getRecord(dataSourceCode, recordID, flags)", params, func(ctx context.Context) native.Result {
		return e.native.GetRecord(ctx, dataSourceCode, recordID, downstream)
	})
}

// GetEntityByEntityID returns an entity.
func (e *Engine) GetEntityByEntityID(ctx context.Context, entityID int64, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("entityID", entityID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupEntity, fl)
	return e.response(ctx, "get_entity_by_entity_id", "getEntity(entityID, flags)", params, func(ctx context.Context) native.Result {
		return e.native.GetEntityByEntityID(ctx, entityID, downstream)
	})
}

// GetEntityByRecordID returns the entity a record resolved into.
func (e *Engine) GetEntityByRecordID(ctx context.Context, dataSourceCode, recordID string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("dataSourceCode", dataSourceCode),
		failure.Param("recordID", recordID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupEntity, fl)
	return e.response(ctx, "get_entity_by_record_id", "getEntity(dataSourceCode, recordID, flags)", params, func(ctx context.Context) native.Result {
		return e.native.GetEntityByRecordID(ctx, dataSourceCode, recordID, downstream)
	})
}

// SearchByAttributes finds entities matching attributes. An empty
// searchProfile uses the engine default.
func (e *Engine) SearchByAttributes(ctx context.Context, attributes, searchProfile string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Redacted("attributes", attributes),
		failure.Param("searchProfile", searchProfile),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupSearch, fl)
	return e.response(ctx, "search_by_attributes", "searchByAttributes(attributes, searchProfile, flags)", params, func(ctx context.Context) native.Result {
		return e.native.SearchByAttributes(ctx, attributes, searchProfile, downstream)
	})
}

// FindPathByEntityID finds a relationship path between two entities.
func (e *Engine) FindPathByEntityID(ctx context.Context, startEntityID, endEntityID int64, maxDegrees int, avoidEntityIDs []int64, requiredDataSources []string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("startEntityID", startEntityID),
		failure.Param("endEntityID", endEntityID),
		failure.Param("maxDegrees", maxDegrees),
		failure.Param("avoidEntityIDs", avoidEntityIDs),
		failure.Param("requiredDataSources", requiredDataSources),
		flagsParam(fl),
	}
	var avoid string
	if len(avoidEntityIDs) > 0 {
		doc, err := entityIDsDocument(avoidEntityIDs)
		if err != nil {
			return "", err
		}
		avoid = doc
	}
	required, err := dataSourcesDocument(requiredDataSources)
	if err != nil {
		return "", err
	}
	downstream := flags.Downstream(flags.GroupFindPath, fl)
	return e.response(ctx, "find_path_by_entity_id", "findPath(startEntityID, endEntityID, maxDegrees, avoidEntityIDs, requiredDataSources, flags)", params, func(ctx context.Context) native.Result {
		return e.native.FindPathByEntityID(ctx, startEntityID, endEntityID, maxDegrees, avoid, required, downstream)
	})
}

// FindNetworkByEntityID finds the network around a set of entities.
func (e *Engine) FindNetworkByEntityID(ctx context.Context, entityIDs []int64, maxDegrees, buildOutDegrees, buildOutMaxEntities int, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("entityIDs", entityIDs),
		failure.Param("maxDegrees", maxDegrees),
		failure.Param("buildOutDegrees", buildOutDegrees),
		failure.Param("buildOutMaxEntities", buildOutMaxEntities),
		flagsParam(fl),
	}
	ids, err := entityIDsDocument(entityIDs)
	if err != nil {
		return "", err
	}
	downstream := flags.Downstream(flags.GroupFindNetwork, fl)
	return e.response(ctx, "find_network_by_entity_id", "findNetwork(entityIDs, maxDegrees, buildOutDegrees, buildOutMaxEntities, flags)", params, func(ctx context.Context) native.Result {
		return e.native.FindNetworkByEntityID(ctx, ids, maxDegrees, buildOutDegrees, buildOutMaxEntities, downstream)
	})
}

// WhyEntities explains why two entities did or did not resolve.
func (e *Engine) WhyEntities(ctx context.Context, entityID1, entityID2 int64, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("entityID1", entityID1),
		failure.Param("entityID2", entityID2),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupWhy, fl)
	return e.response(ctx, "why_entities", "whyEntities(entityID1, entityID2, flags)", params, func(ctx context.Context) native.Result {
		return e.native.WhyEntities(ctx, entityID1, entityID2, downstream)
	})
}

// WhyRecords explains why two records did or did not resolve.
func (e *Engine) WhyRecords(ctx context.Context, record1, record2 RecordKey, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("dataSourceCode1", record1.DataSourceCode),
		failure.Param("recordID1", record1.RecordID),
		failure.Param("dataSourceCode2", record2.DataSourceCode),
		failure.Param("recordID2", record2.RecordID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupWhy, fl)
	return e.response(ctx, "why_records", "whyRecords(dataSourceCode1, recordID1, dataSourceCode2, recordID2, flags)", params, func(ctx context.Context) native.Result {
		return e.native.WhyRecords(ctx, record1.DataSourceCode, record1.RecordID, record2.DataSourceCode, record2.RecordID, downstream)
	})
}

// HowEntity explains how an entity was built.
func (e *Engine) HowEntity(ctx context.Context, entityID int64, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("entityID", entityID),
		flagsParam(fl),
	}
	downstream := flags.Downstream(flags.GroupHow, fl)
	return e.response(ctx, "how_entity", "howEntity(entityID, flags)", params, func(ctx context.Context) native.Result {
		return e.native.HowEntity(ctx, entityID, downstream)
	})
}

// GetVirtualEntity resolves a hypothetical entity from a set of records.
func (e *Engine) GetVirtualEntity(ctx context.Context, records []RecordKey, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Param("recordKeys", records),
		flagsParam(fl),
	}
	doc, err := json.Marshal(struct {
		Records []RecordKey `json:"RECORDS"`
	}{records})
	if err != nil {
		return "", failure.InvalidArgument("cannot encode record keys", err)
	}
	downstream := flags.Downstream(flags.GroupVirtualEntity, fl)
	return e.response(ctx, "get_virtual_entity", "getVirtualEntity(recordKeys, flags)", params, func(ctx context.Context) native.Result {
		return e.native.GetVirtualEntity(ctx, string(doc), downstream)
	})
}

// ExportJSONEntityReport opens an export of every entity.
func (e *Engine) ExportJSONEntityReport(ctx context.Context, fl uint64) (ExportHandle, error) {
	params := []failure.Parameter{flagsParam(fl)}
	downstream := flags.Downstream(flags.GroupExport, fl)
	h, err := e.value(ctx, "export_json_entity_report", "exportJsonEntityReport(flags)", params, func(ctx context.Context) native.Result {
		return e.native.ExportJSONEntityReport(ctx, downstream)
	})
	return ExportHandle(h), err
}

// FetchNext returns the next export line, or "" when the export is done.
func (e *Engine) FetchNext(ctx context.Context, handle ExportHandle) (string, error) {
	params := []failure.Parameter{failure.Param("exportHandle", int64(handle))}
	return e.response(ctx, "fetch_next", "fetchNext(exportHandle)", params, func(ctx context.Context) native.Result {
		return e.native.FetchNext(ctx, int64(handle))
	})
}

// CloseExport releases an export.
func (e *Engine) CloseExport(ctx context.Context, handle ExportHandle) error {
	params := []failure.Parameter{failure.Param("exportHandle", int64(handle))}
	return e.status(ctx, "close_export", "closeExport(exportHandle)", params, func(ctx context.Context) int64 {
		return e.native.CloseExport(ctx, int64(handle))
	})
}

// ExportEntities streams every entity line to fn and always closes the
// export. Iteration stops at the first error from fn.
func (e *Engine) ExportEntities(ctx context.Context, fl uint64, fn func(line string) error) error {
	h, err := e.ExportJSONEntityReport(ctx, fl)
	if err != nil {
		return err
	}

	iterErr := func() error {
		for {
			line, err := e.FetchNext(ctx, h)
			if err != nil {
				return err
			}
			if line == "" {
				return nil
			}
			if err := fn(line); err != nil {
				return err
			}
		}
	}()

	closeErr := e.CloseExport(ctx, h)
	if iterErr != nil {
		return iterErr
	}
	return closeErr
}

// CountRedoRecords returns the number of pending redo records.
func (e *Engine) CountRedoRecords(ctx context.Context) (int64, error) {
	return e.value(ctx, "count_redo_records", "countRedoRecords()", nil, func(ctx context.Context) native.Result {
		return e.native.CountRedoRecords(ctx)
	})
}

// GetRedoRecord dequeues a redo record, or returns "" when none is pending.
func (e *Engine) GetRedoRecord(ctx context.Context) (string, error) {
	return e.response(ctx, "get_redo_record", "getRedoRecord()", nil, func(ctx context.Context) native.Result {
		return e.native.GetRedoRecord(ctx)
	})
}

// ProcessRedoRecord applies a redo record.
func (e *Engine) ProcessRedoRecord(ctx context.Context, redoRecord string, fl uint64) (string, error) {
	params := []failure.Parameter{
		failure.Redacted("redoRecord", redoRecord),
		flagsParam(fl),
	}
	return e.modify(ctx, "process_redo_record", "processRedoRecord(redoRecord, flags)", params, fl, flags.GroupRedo,
		func(ctx context.Context) int64 {
			return e.native.ProcessRedoRecord(ctx, redoRecord)
		},
		func(ctx context.Context, downstream uint64) native.Result {
			return e.native.ProcessRedoRecordWithInfo(ctx, redoRecord, downstream)
		})
}

func entityIDsDocument(ids []int64) (string, error) {
	type entity struct {
		ID int64 `json:"ENTITY_ID"`
	}
	doc := struct {
		Entities []entity `json:"ENTITIES"`
	}{Entities: make([]entity, len(ids))}
	for n, id := range ids {
		doc.Entities[n] = entity{ID: id}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", failure.InvalidArgument("cannot encode entity IDs", err)
	}
	return string(data), nil
}

func dataSourcesDocument(codes []string) (string, error) {
	if len(codes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(struct {
		DataSources []string `json:"DATA_SOURCES"`
	}{codes})
	if err != nil {
		return "", failure.InvalidArgument("cannot encode data sources", err)
	}
	return string(data), nil
}
