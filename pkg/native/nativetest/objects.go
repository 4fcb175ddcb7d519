package nativetest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/erbridge/erbridge/pkg/native"
)

// Version reported by the fake product.
const Version = "4.1.0"

// Product is the fake product object.
type Product struct{ *base }

var _ native.Product = (*Product)(nil)

func (p *Product) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return p.init("Init")
}

func (p *Product) Destroy(ctx context.Context) int64 { return p.destroy() }

func (p *Product) GetLicense(ctx context.Context) native.Result {
	if st := p.begin("GetLicense"); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"customer": "nativetest", "licenseType": "EVAL", "recordLimit": 100000}))
}

func (p *Product) GetVersion(ctx context.Context) native.Result {
	if st := p.begin("GetVersion"); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"PRODUCT_NAME": "nativetest", "VERSION": Version}))
}

// Config is the fake configuration editor.
type Config struct{ *base }

var _ native.Config = (*Config)(nil)

func (c *Config) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return c.init("Init")
}

func (c *Config) Destroy(ctx context.Context) int64 { return c.destroy() }

func (c *Config) Create(ctx context.Context) native.Result {
	if st := c.begin("Create"); st != 0 {
		return failed(st)
	}
	l := c.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.newHandleLocked()
	l.handles[h] = &configDoc{dataSources: map[string]bool{"TEST": true, "SEARCH": true}}
	return native.Result{Value: h}
}

func (c *Config) Import(ctx context.Context, definition string) native.Result {
	if st := c.begin("Import"); st != 0 {
		return failed(st)
	}
	var doc struct {
		DataSources []string `json:"DATA_SOURCES"`
	}
	if err := json.Unmarshal([]byte(definition), &doc); err != nil {
		return failed(c.fail(CodeBadInput, "Invalid configuration JSON: %v", err))
	}
	l := c.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.newHandleLocked()
	cd := &configDoc{dataSources: make(map[string]bool)}
	for _, ds := range doc.DataSources {
		cd.dataSources[ds] = true
	}
	l.handles[h] = cd
	return native.Result{Value: h}
}

func (c *Config) handle(op string, h int64) (*configDoc, int64) {
	if st := c.begin(op); st != 0 {
		return nil, st
	}
	c.lib.mu.Lock()
	cd := c.lib.handles[h]
	c.lib.mu.Unlock()
	if cd == nil {
		return nil, c.fail(CodeBadInput, "Invalid configuration handle %d", h)
	}
	return cd, 0
}

func (c *Config) Export(ctx context.Context, handle int64) native.Result {
	cd, st := c.handle("Export", handle)
	if st != 0 {
		return failed(st)
	}
	c.lib.mu.Lock()
	defer c.lib.mu.Unlock()
	return ok(document(map[string]any{"DATA_SOURCES": sortedKeys(cd.dataSources)}))
}

func (c *Config) Close(ctx context.Context, handle int64) int64 {
	if _, st := c.handle("Close", handle); st != 0 {
		return st
	}
	c.lib.mu.Lock()
	delete(c.lib.handles, handle)
	c.lib.mu.Unlock()
	return 0
}

func (c *Config) GetDataSources(ctx context.Context, handle int64) native.Result {
	cd, st := c.handle("GetDataSources", handle)
	if st != 0 {
		return failed(st)
	}
	c.lib.mu.Lock()
	defer c.lib.mu.Unlock()
	type ds struct {
		Code string `json:"DSRC_CODE"`
		ID   int    `json:"DSRC_ID"`
	}
	out := make([]ds, 0, len(cd.dataSources))
	for i, code := range sortedKeys(cd.dataSources) {
		out = append(out, ds{Code: code, ID: i + 1})
	}
	return ok(document(map[string]any{"DATA_SOURCES": out}))
}

func (c *Config) AddDataSource(ctx context.Context, handle int64, dataSourceCode string) native.Result {
	cd, st := c.handle("AddDataSource", handle)
	if st != 0 {
		return failed(st)
	}
	code := strings.ToUpper(strings.TrimSpace(dataSourceCode))
	if code == "" {
		return failed(c.fail(CodeBadInput, "Data source code must not be empty"))
	}
	c.lib.mu.Lock()
	defer c.lib.mu.Unlock()
	if cd.dataSources[code] {
		return failed(c.fail(CodeBadInput, "Data source code [%s] already exists", code))
	}
	cd.dataSources[code] = true
	return ok(document(map[string]any{"DSRC_ID": len(cd.dataSources)}))
}

func (c *Config) DeleteDataSource(ctx context.Context, handle int64, dataSourceCode string) int64 {
	cd, st := c.handle("DeleteDataSource", handle)
	if st != 0 {
		return st
	}
	c.lib.mu.Lock()
	defer c.lib.mu.Unlock()
	delete(cd.dataSources, strings.ToUpper(dataSourceCode))
	return 0
}

// ConfigManager is the fake configuration registry.
type ConfigManager struct{ *base }

var _ native.ConfigManager = (*ConfigManager)(nil)

func (m *ConfigManager) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return m.init("Init")
}

func (m *ConfigManager) Destroy(ctx context.Context) int64 { return m.destroy() }

func (m *ConfigManager) AddConfig(ctx context.Context, definition, comment string) native.Result {
	if st := m.begin("AddConfig"); st != 0 {
		return failed(st)
	}
	if !json.Valid([]byte(definition)) {
		return failed(m.fail(CodeBadInput, "Invalid configuration JSON"))
	}
	m.lib.mu.Lock()
	defer m.lib.mu.Unlock()
	return native.Result{Value: m.lib.addConfigLocked(definition)}
}

func (m *ConfigManager) GetConfig(ctx context.Context, configID int64) native.Result {
	if st := m.begin("GetConfig"); st != 0 {
		return failed(st)
	}
	m.lib.mu.Lock()
	def, found := m.lib.configs[configID]
	m.lib.mu.Unlock()
	if !found {
		return failed(m.fail(CodeUnknownConfig, "Unknown configuration ID %d", configID))
	}
	return ok(def)
}

func (m *ConfigManager) GetConfigs(ctx context.Context) native.Result {
	if st := m.begin("GetConfigs"); st != 0 {
		return failed(st)
	}
	m.lib.mu.Lock()
	defer m.lib.mu.Unlock()
	type entry struct {
		ID int64 `json:"CONFIG_ID"`
	}
	ids := make([]entry, 0, len(m.lib.configs))
	for id := int64(1001); id < m.lib.nextConfigID; id++ {
		if _, found := m.lib.configs[id]; found {
			ids = append(ids, entry{ID: id})
		}
	}
	return ok(document(map[string]any{"CONFIGS": ids}))
}

func (m *ConfigManager) GetDefaultConfigID(ctx context.Context) native.Result {
	if st := m.begin("GetDefaultConfigID"); st != 0 {
		return failed(st)
	}
	m.lib.mu.Lock()
	defer m.lib.mu.Unlock()
	return native.Result{Value: m.lib.defaultConfigID}
}

func (m *ConfigManager) ReplaceDefaultConfigID(ctx context.Context, currentID, newID int64) int64 {
	if st := m.begin("ReplaceDefaultConfigID"); st != 0 {
		return st
	}
	m.lib.mu.Lock()
	current := m.lib.defaultConfigID
	_, known := m.lib.configs[newID]
	if current == currentID && known {
		m.lib.defaultConfigID = newID
	}
	m.lib.mu.Unlock()

	if !known {
		return m.fail(CodeUnknownConfig, "Unknown configuration ID %d", newID)
	}
	if current != currentID {
		return m.fail(CodeReplaceConflict, "Default configuration is %d, not %d", current, currentID)
	}
	return 0
}

func (m *ConfigManager) SetDefaultConfigID(ctx context.Context, configID int64) int64 {
	if st := m.begin("SetDefaultConfigID"); st != 0 {
		return st
	}
	m.lib.mu.Lock()
	_, known := m.lib.configs[configID]
	if known {
		m.lib.defaultConfigID = configID
	}
	m.lib.mu.Unlock()
	if !known {
		return m.fail(CodeUnknownConfig, "Unknown configuration ID %d", configID)
	}
	return 0
}

// Diagnostic is the fake datastore diagnostic object.
type Diagnostic struct{ *base }

var _ native.Diagnostic = (*Diagnostic)(nil)

func (d *Diagnostic) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return d.init("Init")
}

func (d *Diagnostic) InitWithConfigID(ctx context.Context, instanceName, settings string, configID int64, verbose bool) int64 {
	return d.init("InitWithConfigID")
}

func (d *Diagnostic) Destroy(ctx context.Context) int64 { return d.destroy() }

func (d *Diagnostic) CheckDatastorePerformance(ctx context.Context, seconds int) native.Result {
	if st := d.begin("CheckDatastorePerformance"); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"numRecordsInserted": 1000 * seconds, "insertTime": seconds * 1000}))
}

func (d *Diagnostic) GetDatastoreInfo(ctx context.Context) native.Result {
	if st := d.begin("GetDatastoreInfo"); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"dataStores": []map[string]string{{"id": "CORE", "type": "memory", "location": "nativetest"}}}))
}

func (d *Diagnostic) GetFeature(ctx context.Context, featureID int64) native.Result {
	if st := d.begin("GetFeature"); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"LIB_FEAT_ID": featureID, "FTYPE_CODE": "NAME"}))
}

func (d *Diagnostic) PurgeRepository(ctx context.Context) int64 {
	if st := d.begin("PurgeRepository"); st != 0 {
		return st
	}
	l := d.lib
	l.mu.Lock()
	l.records = make(map[string]*record)
	l.redo = nil
	l.mu.Unlock()
	return 0
}

func (d *Diagnostic) Reinitialize(ctx context.Context, configID int64) int64 {
	if st := d.begin("Reinitialize"); st != 0 {
		return st
	}
	return 0
}

// Engine is the fake entity-resolution engine. Every record resolves to its
// own entity.
type Engine struct{ *base }

var _ native.Engine = (*Engine)(nil)

func (e *Engine) Init(ctx context.Context, instanceName, settings string, verbose bool) int64 {
	return e.init("Init")
}

func (e *Engine) InitWithConfigID(ctx context.Context, instanceName, settings string, configID int64, verbose bool) int64 {
	if st := e.init("InitWithConfigID"); st != 0 {
		return st
	}
	e.lib.mu.Lock()
	e.lib.activeConfigID = configID
	e.lib.mu.Unlock()
	return 0
}

func (e *Engine) Destroy(ctx context.Context) int64 { return e.destroy() }

func (e *Engine) PrimeEngine(ctx context.Context) int64 { return e.begin("PrimeEngine") }

func (e *Engine) GetActiveConfigID(ctx context.Context) native.Result {
	if st := e.begin("GetActiveConfigID"); st != 0 {
		return failed(st)
	}
	e.lib.mu.Lock()
	defer e.lib.mu.Unlock()
	return native.Result{Value: e.lib.activeConfigID}
}

func (e *Engine) Reinitialize(ctx context.Context, configID int64) int64 {
	if st := e.begin("Reinitialize"); st != 0 {
		return st
	}
	e.lib.mu.Lock()
	_, known := e.lib.configs[configID]
	if known {
		e.lib.activeConfigID = configID
	}
	e.lib.mu.Unlock()
	if !known {
		return e.fail(CodeUnknownConfig, "Unknown configuration ID %d", configID)
	}
	return 0
}

func (e *Engine) GetStats(ctx context.Context) native.Result {
	if st := e.begin("GetStats"); st != 0 {
		return failed(st)
	}
	e.lib.mu.Lock()
	defer e.lib.mu.Unlock()
	return ok(document(map[string]any{"workload": map[string]any{"loadedRecords": len(e.lib.records)}}))
}

func recordKey(dataSourceCode, recordID string) string {
	return dataSourceCode + "\x00" + recordID
}

func (e *Engine) addRecord(op, dataSourceCode, recordID, definition string) (int64, int64) {
	if st := e.begin(op); st != 0 {
		return st, 0
	}
	if !json.Valid([]byte(definition)) {
		return e.fail(CodeBadInput, "Invalid JSON in record definition"), 0
	}

	l := e.lib
	l.mu.Lock()
	if !l.dataSources[dataSourceCode] {
		l.mu.Unlock()
		return e.fail(CodeUnknownDataSource, "Unknown data source code '%s'", dataSourceCode), 0
	}
	key := recordKey(dataSourceCode, recordID)
	r, exists := l.records[key]
	if !exists {
		r = &record{DataSource: dataSourceCode, ID: recordID, EntityID: l.nextEntity}
		l.nextEntity++
		l.records[key] = r
	}
	r.JSON = definition
	l.mu.Unlock()
	return 0, r.EntityID
}

func (e *Engine) AddRecord(ctx context.Context, dataSourceCode, recordID, definition string) int64 {
	st, _ := e.addRecord("AddRecord", dataSourceCode, recordID, definition)
	return st
}

func (e *Engine) AddRecordWithInfo(ctx context.Context, dataSourceCode, recordID, definition string, flags uint64) native.Result {
	st, entityID := e.addRecord("AddRecordWithInfo", dataSourceCode, recordID, definition)
	if st != 0 {
		return failed(st)
	}
	return ok(withInfo(dataSourceCode, recordID, entityID))
}

func (e *Engine) deleteRecord(op, dataSourceCode, recordID string) (int64, int64) {
	if st := e.begin(op); st != 0 {
		return st, 0
	}
	l := e.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dataSources[dataSourceCode] {
		return e.fail(CodeUnknownDataSource, "Unknown data source code '%s'", dataSourceCode), 0
	}
	key := recordKey(dataSourceCode, recordID)
	r := l.records[key]
	delete(l.records, key)
	if r == nil {
		return 0, 0
	}
	return 0, r.EntityID
}

func (e *Engine) DeleteRecord(ctx context.Context, dataSourceCode, recordID string) int64 {
	st, _ := e.deleteRecord("DeleteRecord", dataSourceCode, recordID)
	return st
}

func (e *Engine) DeleteRecordWithInfo(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	st, entityID := e.deleteRecord("DeleteRecordWithInfo", dataSourceCode, recordID)
	if st != 0 {
		return failed(st)
	}
	return ok(withInfo(dataSourceCode, recordID, entityID))
}

func (e *Engine) findRecord(op, dataSourceCode, recordID string) (*record, int64) {
	if st := e.begin(op); st != 0 {
		return nil, st
	}
	l := e.lib
	l.mu.Lock()
	known := l.dataSources[dataSourceCode]
	var r *record
	if found := l.records[recordKey(dataSourceCode, recordID)]; found != nil {
		cp := *found
		r = &cp
	}
	l.mu.Unlock()

	if !known {
		return nil, e.fail(CodeUnknownDataSource, "Unknown data source code '%s'", dataSourceCode)
	}
	if r == nil {
		return nil, e.fail(CodeUnknownRecord, "Unknown record: dsrc[%s], record[%s]", dataSourceCode, recordID)
	}
	return r, 0
}

func (e *Engine) findEntity(op string, entityID int64) (*record, int64) {
	if st := e.begin(op); st != 0 {
		return nil, st
	}
	l := e.lib
	l.mu.Lock()
	var r *record
	for _, candidate := range l.records {
		if candidate.EntityID == entityID {
			cp := *candidate
			r = &cp
			break
		}
	}
	l.mu.Unlock()
	if r == nil {
		return nil, e.fail(CodeUnknownEntity, "Unknown resolved entity value '%d'", entityID)
	}
	return r, 0
}

func (e *Engine) ReevaluateRecord(ctx context.Context, dataSourceCode, recordID string, flags uint64) int64 {
	_, st := e.findRecord("ReevaluateRecord", dataSourceCode, recordID)
	return st
}

func (e *Engine) ReevaluateRecordWithInfo(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	r, st := e.findRecord("ReevaluateRecordWithInfo", dataSourceCode, recordID)
	if st != 0 {
		return failed(st)
	}
	return ok(withInfo(r.DataSource, r.ID, r.EntityID))
}

func (e *Engine) ReevaluateEntity(ctx context.Context, entityID int64, flags uint64) int64 {
	_, st := e.findEntity("ReevaluateEntity", entityID)
	return st
}

func (e *Engine) ReevaluateEntityWithInfo(ctx context.Context, entityID int64, flags uint64) native.Result {
	r, st := e.findEntity("ReevaluateEntityWithInfo", entityID)
	if st != 0 {
		return failed(st)
	}
	return ok(withInfo(r.DataSource, r.ID, r.EntityID))
}

func (e *Engine) GetRecord(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	r, st := e.findRecord("GetRecord", dataSourceCode, recordID)
	if st != 0 {
		return failed(st)
	}
	return ok(recordDocument(r))
}

func (e *Engine) GetEntityByEntityID(ctx context.Context, entityID int64, flags uint64) native.Result {
	r, st := e.findEntity("GetEntityByEntityID", entityID)
	if st != 0 {
		return failed(st)
	}
	return ok(entityDocument(r, flags))
}

func (e *Engine) GetEntityByRecordID(ctx context.Context, dataSourceCode, recordID string, flags uint64) native.Result {
	r, st := e.findRecord("GetEntityByRecordID", dataSourceCode, recordID)
	if st != 0 {
		return failed(st)
	}
	return ok(entityDocument(r, flags))
}

func (e *Engine) SearchByAttributes(ctx context.Context, attributes, searchProfile string, flags uint64) native.Result {
	if st := e.begin("SearchByAttributes"); st != 0 {
		return failed(st)
	}
	var want map[string]any
	if err := json.Unmarshal([]byte(attributes), &want); err != nil {
		return failed(e.fail(CodeBadInput, "Invalid JSON in search attributes: %v", err))
	}

	l := e.lib
	l.mu.Lock()
	matches := make([]map[string]any, 0)
	for _, r := range l.records {
		var have map[string]any
		if json.Unmarshal([]byte(r.JSON), &have) != nil {
			continue
		}
		if containsAll(have, want) {
			matches = append(matches, map[string]any{"ENTITY": map[string]any{"RESOLVED_ENTITY": map[string]any{"ENTITY_ID": r.EntityID}}})
		}
	}
	l.mu.Unlock()
	return ok(document(map[string]any{"RESOLVED_ENTITIES": matches}))
}

func (e *Engine) FindPathByEntityID(ctx context.Context, startEntityID, endEntityID int64, maxDegrees int, avoidEntityIDs, requiredDataSources string, flags uint64) native.Result {
	if _, st := e.findEntity("FindPathByEntityID", startEntityID); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"ENTITY_PATHS": []map[string]any{{"START_ENTITY_ID": startEntityID, "END_ENTITY_ID": endEntityID, "ENTITIES": []int64{}}}}))
}

func (e *Engine) FindNetworkByEntityID(ctx context.Context, entityIDs string, maxDegrees, buildOutDegrees, buildOutMaxEntities int, flags uint64) native.Result {
	if st := e.begin("FindNetworkByEntityID"); st != 0 {
		return failed(st)
	}
	if !json.Valid([]byte(entityIDs)) {
		return failed(e.fail(CodeBadInput, "Invalid JSON in entity list"))
	}
	return ok(document(map[string]any{"ENTITY_PATHS": []any{}, "ENTITIES": []any{}}))
}

func (e *Engine) WhyEntities(ctx context.Context, entityID1, entityID2 int64, flags uint64) native.Result {
	if _, st := e.findEntity("WhyEntities", entityID1); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"WHY_RESULTS": []map[string]any{{"ENTITY_ID": entityID1, "ENTITY_ID_2": entityID2}}}))
}

func (e *Engine) WhyRecords(ctx context.Context, dataSourceCode1, recordID1, dataSourceCode2, recordID2 string, flags uint64) native.Result {
	r, st := e.findRecord("WhyRecords", dataSourceCode1, recordID1)
	if st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"WHY_RESULTS": []map[string]any{{"ENTITY_ID": r.EntityID}}}))
}

func (e *Engine) HowEntity(ctx context.Context, entityID int64, flags uint64) native.Result {
	if _, st := e.findEntity("HowEntity", entityID); st != 0 {
		return failed(st)
	}
	return ok(document(map[string]any{"HOW_RESULTS": map[string]any{"FINAL_STATE": map[string]any{"NEED_REEVALUATION": 0}}}))
}

func (e *Engine) GetVirtualEntity(ctx context.Context, recordKeys string, flags uint64) native.Result {
	if st := e.begin("GetVirtualEntity"); st != 0 {
		return failed(st)
	}
	var keys struct {
		Records []struct {
			DataSource string `json:"DATA_SOURCE"`
			RecordID   string `json:"RECORD_ID"`
		} `json:"RECORDS"`
	}
	if err := json.Unmarshal([]byte(recordKeys), &keys); err != nil || len(keys.Records) == 0 {
		return failed(e.fail(CodeBadInput, "Invalid record keys"))
	}
	return ok(document(map[string]any{"RESOLVED_ENTITY": map[string]any{"ENTITY_ID": 0, "RECORDS": keys.Records}}))
}

func (e *Engine) ExportJSONEntityReport(ctx context.Context, flags uint64) native.Result {
	if st := e.begin("ExportJSONEntityReport"); st != 0 {
		return failed(st)
	}
	l := e.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	lines := make([]string, 0, len(l.records))
	for _, r := range l.records {
		lines = append(lines, entityDocument(r, flags)+"\n")
	}
	h := l.newHandleLocked()
	l.exports[h] = lines
	return native.Result{Value: h}
}

func (e *Engine) FetchNext(ctx context.Context, exportHandle int64) native.Result {
	if st := e.begin("FetchNext"); st != 0 {
		return failed(st)
	}
	l := e.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	lines, found := l.exports[exportHandle]
	if !found {
		return failed(e.fail(CodeBadInput, "Invalid export handle %d", exportHandle))
	}
	if len(lines) == 0 {
		return ok("")
	}
	l.exports[exportHandle] = lines[1:]
	return ok(lines[0])
}

func (e *Engine) CloseExport(ctx context.Context, exportHandle int64) int64 {
	if st := e.begin("CloseExport"); st != 0 {
		return st
	}
	e.lib.mu.Lock()
	delete(e.lib.exports, exportHandle)
	e.lib.mu.Unlock()
	return 0
}

func (e *Engine) CountRedoRecords(ctx context.Context) native.Result {
	if st := e.begin("CountRedoRecords"); st != 0 {
		return failed(st)
	}
	e.lib.mu.Lock()
	defer e.lib.mu.Unlock()
	return native.Result{Value: int64(len(e.lib.redo))}
}

func (e *Engine) GetRedoRecord(ctx context.Context) native.Result {
	if st := e.begin("GetRedoRecord"); st != 0 {
		return failed(st)
	}
	l := e.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.redo) == 0 {
		return ok("")
	}
	next := l.redo[0]
	l.redo = l.redo[1:]
	return ok(next)
}

func (e *Engine) ProcessRedoRecord(ctx context.Context, redoRecord string) int64 {
	if st := e.begin("ProcessRedoRecord"); st != 0 {
		return st
	}
	if !json.Valid([]byte(redoRecord)) {
		return e.fail(CodeBadInput, "Invalid redo record")
	}
	return 0
}

func (e *Engine) ProcessRedoRecordWithInfo(ctx context.Context, redoRecord string, flags uint64) native.Result {
	if st := e.begin("ProcessRedoRecordWithInfo"); st != 0 {
		return failed(st)
	}
	var redo struct {
		DataSource string `json:"DATA_SOURCE"`
		RecordID   string `json:"RECORD_ID"`
	}
	if err := json.Unmarshal([]byte(redoRecord), &redo); err != nil {
		return failed(e.fail(CodeBadInput, "Invalid redo record"))
	}
	return ok(withInfo(redo.DataSource, redo.RecordID, 0))
}

func withInfo(dataSourceCode, recordID string, entityID int64) string {
	affected := []map[string]int64{}
	if entityID != 0 {
		affected = append(affected, map[string]int64{"ENTITY_ID": entityID})
	}
	return document(map[string]any{
		"DATA_SOURCE":       dataSourceCode,
		"RECORD_ID":         recordID,
		"AFFECTED_ENTITIES": affected,
	})
}

func recordDocument(r *record) string {
	return document(map[string]any{
		"DATA_SOURCE": r.DataSource,
		"RECORD_ID":   r.ID,
		"JSON_DATA":   json.RawMessage(r.JSON),
	})
}

func entityDocument(r *record, flags uint64) string {
	return document(map[string]any{
		"RESOLVED_ENTITY": map[string]any{
			"ENTITY_ID": r.EntityID,
			"RECORDS":   []map[string]string{{"DATA_SOURCE": r.DataSource, "RECORD_ID": r.ID}},
		},
		"FLAGS": strconv.FormatUint(flags, 10),
	})
}

func containsAll(have, want map[string]any) bool {
	for k, v := range want {
		if fmt.Sprint(have[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
