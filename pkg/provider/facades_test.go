package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/flags"
	"github.com/erbridge/erbridge/pkg/native/nativetest"
	"github.com/erbridge/erbridge/pkg/stores"
)

func newTestEngine(t *testing.T, lib *nativetest.Library, configure func(b *Builder)) (*Instance, *Engine) {
	t.Helper()
	inst := newTestInstance(t, lib, configure)
	engine, err := inst.Engine(context.Background())
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	return inst, engine
}

func TestProductVersionAndLicense(t *testing.T) {
	inst := newTestInstance(t, nativetest.New(), nil)
	ctx := context.Background()

	product, err := inst.Product(ctx)
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	version, err := product.GetVersion(ctx)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if !strings.Contains(version, nativetest.Version) {
		t.Errorf("GetVersion() = %s, want it to contain %s", version, nativetest.Version)
	}
	license, err := product.GetLicense(ctx)
	if err != nil {
		t.Fatalf("GetLicense() error = %v", err)
	}
	if !json.Valid([]byte(license)) {
		t.Errorf("GetLicense() = %s, not JSON", license)
	}
	if product.Instance() != inst {
		t.Error("Instance() does not return the owning instance")
	}
}

func TestEngineMasksFlagsPerGroup(t *testing.T) {
	lib := nativetest.New()
	_, engine := newTestEngine(t, lib, nil)
	ctx := context.Background()

	if _, err := engine.AddRecord(ctx, "TEST", "1", `{"NAME_FULL":"Ann Smith"}`, 0); err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}

	tests := []struct {
		name string
		raw  uint64
		want uint64
	}{
		{"zero", 0, 0},
		{"entity flag kept", flags.Encode(flags.EntityIncludeEntityName), flags.EntityIncludeEntityName.Bits()},
		{"find path flag dropped", flags.Encode(flags.EntityIncludeEntityName, flags.FindPathStrictAvoid), flags.EntityIncludeEntityName.Bits()},
		{"with info stripped", flags.Encode(flags.EntityIncludeEntityName, flags.FindPathStrictAvoid, flags.WithInfo), flags.EntityIncludeEntityName.Bits()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := engine.GetEntityByRecordID(ctx, "TEST", "1", tt.raw)
			if err != nil {
				t.Fatalf("GetEntityByRecordID() error = %v", err)
			}
			var got struct {
				Flags string `json:"FLAGS"`
			}
			if err := json.Unmarshal([]byte(doc), &got); err != nil {
				t.Fatalf("decode entity: %v", err)
			}
			if got.Flags != strconv.FormatUint(tt.want, 10) {
				t.Errorf("downstream flags = %s, want %d", got.Flags, tt.want)
			}
			if want := flags.Downstream(flags.GroupEntity, tt.raw); got.Flags != strconv.FormatUint(want, 10) {
				t.Errorf("downstream flags = %s, Downstream() = %d", got.Flags, want)
			}
		})
	}
}

func TestEngineWithInfoSelectsVariant(t *testing.T) {
	lib := nativetest.New()
	_, engine := newTestEngine(t, lib, nil)
	ctx := context.Background()

	plain, err := engine.AddRecord(ctx, "TEST", "1", `{"NAME_FULL":"Ann Smith"}`, 0)
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	if plain != "" {
		t.Errorf("AddRecord() without WithInfo = %q, want empty", plain)
	}

	info, err := engine.AddRecord(ctx, "TEST", "2", `{"NAME_FULL":"Bob Jones"}`, flags.WithInfo.Bits())
	if err != nil {
		t.Fatalf("AddRecord(WithInfo) error = %v", err)
	}
	var doc struct {
		DataSource string `json:"DATA_SOURCE"`
		RecordID   string `json:"RECORD_ID"`
		Affected   []struct {
			EntityID int64 `json:"ENTITY_ID"`
		} `json:"AFFECTED_ENTITIES"`
	}
	if err := json.Unmarshal([]byte(info), &doc); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if doc.DataSource != "TEST" || doc.RecordID != "2" || len(doc.Affected) != 1 {
		t.Errorf("info = %+v", doc)
	}

	if got := lib.Calls(nativetest.KindEngine, "AddRecord"); got != 1 {
		t.Errorf("AddRecord calls = %d, want 1", got)
	}
	if got := lib.Calls(nativetest.KindEngine, "AddRecordWithInfo"); got != 1 {
		t.Errorf("AddRecordWithInfo calls = %d, want 1", got)
	}

	tests := []struct {
		name    string
		call    func(fl uint64) (string, error)
		plainOp string
		infoOp  string
	}{
		{
			name:    "delete record",
			call:    func(fl uint64) (string, error) { return engine.DeleteRecord(ctx, "TEST", "9", fl) },
			plainOp: "DeleteRecord",
			infoOp:  "DeleteRecordWithInfo",
		},
		{
			name:    "reevaluate record",
			call:    func(fl uint64) (string, error) { return engine.ReevaluateRecord(ctx, "TEST", "1", fl) },
			plainOp: "ReevaluateRecord",
			infoOp:  "ReevaluateRecordWithInfo",
		},
		{
			name:    "reevaluate entity",
			call:    func(fl uint64) (string, error) { return engine.ReevaluateEntity(ctx, 1, fl) },
			plainOp: "ReevaluateEntity",
			infoOp:  "ReevaluateEntityWithInfo",
		},
		{
			name:    "process redo",
			call:    func(fl uint64) (string, error) { return engine.ProcessRedoRecord(ctx, `{"DATA_SOURCE":"TEST","RECORD_ID":"1"}`, fl) },
			plainOp: "ProcessRedoRecord",
			infoOp:  "ProcessRedoRecordWithInfo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.call(0)
			if err != nil || out != "" {
				t.Fatalf("plain call = %q, %v", out, err)
			}
			out, err = tt.call(flags.WithInfo.Bits())
			if err != nil || !json.Valid([]byte(out)) {
				t.Fatalf("info call = %q, %v", out, err)
			}
			if lib.Calls(nativetest.KindEngine, tt.plainOp) != 1 || lib.Calls(nativetest.KindEngine, tt.infoOp) != 1 {
				t.Errorf("%s calls = %d, %s calls = %d, want 1 each",
					tt.plainOp, lib.Calls(nativetest.KindEngine, tt.plainOp),
					tt.infoOp, lib.Calls(nativetest.KindEngine, tt.infoOp))
			}
		})
	}
}

func TestEngineTranslatesFailures(t *testing.T) {
	lib := nativetest.New()
	journal := &memJournal{}
	inst, engine := newTestEngine(t, lib, func(b *Builder) { b.Journal(journal) })
	ctx := context.Background()

	_, err := engine.GetRecord(ctx, "TEST", "404", flags.EntityIncludeEntityName.Bits())
	if !failure.IsNotFound(err) {
		t.Fatalf("GetRecord() error = %v, want not-found", err)
	}
	var f *failure.Failure
	if !errors.As(err, &f) {
		t.Fatalf("GetRecord() error is %T, want *failure.Failure", err)
	}
	if code, ok := f.ErrorCode(); !ok || code != nativetest.CodeUnknownRecord {
		t.Errorf("ErrorCode() = %d, %v", code, ok)
	}
	if f.Signature != "getRecord(dataSourceCode, recordID, flags)" {
		t.Errorf("Signature = %s", f.Signature)
	}
	if keys := strings.Join(f.Parameters.Keys(), ","); keys != "dataSourceCode,recordID,flags" {
		t.Errorf("Parameters keys = %s", keys)
	}
	if v, _ := f.Parameters.Get("recordID"); v != "404" {
		t.Errorf("recordID parameter = %v", v)
	}

	journal.mu.Lock()
	journaled := append([]*stores.FailureRecord(nil), journal.failures...)
	journal.mu.Unlock()
	if len(journaled) != 1 {
		t.Fatalf("journaled failures = %d, want 1", len(journaled))
	}
	rec := journaled[0]
	if rec.InstanceID != inst.ID() || rec.Facade != FacadeEngine || rec.Kind != string(failure.KindNotFound) {
		t.Errorf("journaled failure = %+v", rec)
	}

	tests := []struct {
		name  string
		call  func() error
		check func(error) bool
	}{
		{
			name:  "unknown data source",
			call:  func() error { _, err := engine.AddRecord(ctx, "NOPE", "1", `{}`, 0); return err },
			check: failure.IsUnknownDataSource,
		},
		{
			name:  "bad record json",
			call:  func() error { _, err := engine.AddRecord(ctx, "TEST", "1", `{"NAME`, 0); return err },
			check: failure.IsBadInput,
		},
		{
			name:  "unknown entity",
			call:  func() error { _, err := engine.GetEntityByEntityID(ctx, 999, 0); return err },
			check: failure.IsNotFound,
		},
		{
			name: "injected retryable",
			call: func() error {
				lib.Fail(nativetest.KindEngine, "GetStats", 54, "Database deadlock", 1)
				_, err := engine.GetStats(ctx)
				return err
			},
			check: failure.IsRetryable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !tt.check(err) {
				t.Errorf("error = %v (kind %q)", err, failure.KindOf(err))
			}
		})
	}
}

func TestEngineRecordLifecycle(t *testing.T) {
	lib := nativetest.New()
	_, engine := newTestEngine(t, lib, nil)
	ctx := context.Background()

	if err := engine.PrimeEngine(ctx); err != nil {
		t.Fatalf("PrimeEngine() error = %v", err)
	}
	if _, err := engine.AddRecord(ctx, "TEST", "1", `{"NAME_FULL":"Ann Smith","PHONE":"555"}`, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AddRecord(ctx, "SEARCH", "2", `{"NAME_FULL":"Bob Jones"}`, 0); err != nil {
		t.Fatal(err)
	}

	record, err := engine.GetRecord(ctx, "TEST", "1", 0)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if !strings.Contains(record, `"RECORD_ID":"1"`) {
		t.Errorf("GetRecord() = %s", record)
	}

	found, err := engine.SearchByAttributes(ctx, `{"PHONE":"555"}`, "", 0)
	if err != nil {
		t.Fatalf("SearchByAttributes() error = %v", err)
	}
	var search struct {
		Entities []json.RawMessage `json:"RESOLVED_ENTITIES"`
	}
	if err := json.Unmarshal([]byte(found), &search); err != nil || len(search.Entities) != 1 {
		t.Errorf("SearchByAttributes() = %s, %v", found, err)
	}

	stats, err := engine.GetStats(ctx)
	if err != nil || !strings.Contains(stats, `"loadedRecords":2`) {
		t.Errorf("GetStats() = %s, %v", stats, err)
	}

	if _, err := engine.FindPathByEntityID(ctx, 1, 2, 3, []int64{5}, []string{"TEST"}, 0); err != nil {
		t.Errorf("FindPathByEntityID() error = %v", err)
	}
	if _, err := engine.FindPathByEntityID(ctx, 1, 2, 3, nil, nil, 0); err != nil {
		t.Errorf("FindPathByEntityID() without avoid list error = %v", err)
	}
	if _, err := engine.FindNetworkByEntityID(ctx, []int64{1, 2}, 2, 1, 10, 0); err != nil {
		t.Errorf("FindNetworkByEntityID() error = %v", err)
	}
	if _, err := engine.FindNetworkByEntityID(ctx, nil, 2, 1, 10, 0); err != nil {
		t.Errorf("FindNetworkByEntityID() with no entities error = %v", err)
	}
	if _, err := engine.WhyEntities(ctx, 1, 2, 0); err != nil {
		t.Errorf("WhyEntities() error = %v", err)
	}
	if _, err := engine.WhyRecords(ctx, RecordKey{"TEST", "1"}, RecordKey{"SEARCH", "2"}, 0); err != nil {
		t.Errorf("WhyRecords() error = %v", err)
	}
	if _, err := engine.HowEntity(ctx, 1, 0); err != nil {
		t.Errorf("HowEntity() error = %v", err)
	}
	virtual, err := engine.GetVirtualEntity(ctx, []RecordKey{{"TEST", "1"}, {"SEARCH", "2"}}, 0)
	if err != nil || !strings.Contains(virtual, `"RECORD_ID":"2"`) {
		t.Errorf("GetVirtualEntity() = %s, %v", virtual, err)
	}

	if _, err := engine.DeleteRecord(ctx, "SEARCH", "2", 0); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if _, err := engine.GetRecord(ctx, "SEARCH", "2", 0); !failure.IsNotFound(err) {
		t.Errorf("GetRecord() after delete error = %v, want not-found", err)
	}
}

func TestEngineExportEntities(t *testing.T) {
	lib := nativetest.New()
	_, engine := newTestEngine(t, lib, nil)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if _, err := engine.AddRecord(ctx, "TEST", id, `{}`, 0); err != nil {
			t.Fatal(err)
		}
	}

	var lines []string
	err := engine.ExportEntities(ctx, flags.EntityIncludeEntityName.Bits(), func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("ExportEntities() error = %v", err)
	}
	if len(lines) != 3 {
		t.Errorf("exported %d lines, want 3", len(lines))
	}
	if lib.Calls(nativetest.KindEngine, "CloseExport") != 1 {
		t.Error("export not closed")
	}

	stop := errors.New("stop")
	err = engine.ExportEntities(ctx, 0, func(line string) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("ExportEntities() error = %v, want %v", err, stop)
	}
	if lib.Calls(nativetest.KindEngine, "CloseExport") != 2 {
		t.Error("export not closed after callback error")
	}
}

func TestEngineRedo(t *testing.T) {
	lib := nativetest.New()
	_, engine := newTestEngine(t, lib, nil)
	ctx := context.Background()

	lib.QueueRedo(`{"DATA_SOURCE":"TEST","RECORD_ID":"7"}`)
	lib.QueueRedo(`{"DATA_SOURCE":"TEST","RECORD_ID":"8"}`)

	count, err := engine.CountRedoRecords(ctx)
	if err != nil || count != 2 {
		t.Fatalf("CountRedoRecords() = %d, %v", count, err)
	}

	var processed int
	for {
		redo, err := engine.GetRedoRecord(ctx)
		if err != nil {
			t.Fatalf("GetRedoRecord() error = %v", err)
		}
		if redo == "" {
			break
		}
		info, err := engine.ProcessRedoRecord(ctx, redo, flags.WithInfo.Bits())
		if err != nil {
			t.Fatalf("ProcessRedoRecord() error = %v", err)
		}
		if !strings.Contains(info, `"DATA_SOURCE":"TEST"`) {
			t.Errorf("ProcessRedoRecord() = %s", info)
		}
		processed++
	}
	if processed != 2 {
		t.Errorf("processed %d redo records, want 2", processed)
	}
}

func TestReinitialize(t *testing.T) {
	lib := nativetest.New()
	journal := &memJournal{}
	inst := newTestInstance(t, lib, func(b *Builder) { b.Journal(journal) })
	ctx := context.Background()

	if _, err := inst.Diagnostic(ctx); err != nil {
		t.Fatal(err)
	}
	manager, err := inst.ConfigManager(ctx)
	if err != nil {
		t.Fatal(err)
	}
	newID, err := manager.AddConfig(ctx, `{"G2_CONFIG":{"CFG_DSRC":[]}}`, "second")
	if err != nil {
		t.Fatalf("AddConfig() error = %v", err)
	}

	if err := inst.Reinitialize(ctx, newID); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}
	active, err := inst.ActiveConfigID(ctx)
	if err != nil || active != newID {
		t.Errorf("ActiveConfigID() = %d, %v, want %d", active, err, newID)
	}
	if id, ok := inst.ConfigID(); !ok || id != newID {
		t.Errorf("ConfigID() = %d, %v, want %d", id, ok, newID)
	}
	if lib.Calls(nativetest.KindDiagnostic, "Reinitialize") != 1 {
		t.Error("bound diagnostic not reinitialized")
	}

	err = inst.Reinitialize(ctx, 4242)
	if failure.KindOf(err) != failure.KindConfiguration {
		t.Errorf("Reinitialize(unknown) error = %v, want configuration failure", err)
	}
	if id, _ := inst.ConfigID(); id != newID {
		t.Errorf("ConfigID() = %d after failed reinitialize, want %d", id, newID)
	}

	states := journal.states()
	if states[len(states)-1] != stores.LifecycleReinitialized {
		t.Errorf("journaled states = %v", states)
	}
}

func TestExplicitConfigIDBindsWithConfigID(t *testing.T) {
	lib := nativetest.New()
	inst := newTestInstance(t, lib, func(b *Builder) { b.ConfigID(1001) })
	ctx := context.Background()

	if _, err := inst.Engine(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Diagnostic(ctx); err != nil {
		t.Fatal(err)
	}

	for _, kind := range []string{nativetest.KindEngine, nativetest.KindDiagnostic} {
		if lib.Calls(kind, "InitWithConfigID") != 1 || lib.Calls(kind, "Init") != 0 {
			t.Errorf("%s: InitWithConfigID = %d, Init = %d", kind, lib.Calls(kind, "InitWithConfigID"), lib.Calls(kind, "Init"))
		}
	}
	active, err := inst.ActiveConfigID(ctx)
	if err != nil || active != 1001 {
		t.Errorf("ActiveConfigID() = %d, %v", active, err)
	}
}

func TestConfigDocuments(t *testing.T) {
	inst := newTestInstance(t, nativetest.New(), nil)
	ctx := context.Background()

	config, err := inst.Config(ctx)
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}

	var exported string
	err = config.WithConfig(ctx, "", func(h ConfigHandle) error {
		if _, err := config.AddDataSource(ctx, h, "customers"); err != nil {
			return err
		}
		if err := config.DeleteDataSource(ctx, h, "SEARCH"); err != nil {
			return err
		}
		var err error
		exported, err = config.ExportConfig(ctx, h)
		return err
	})
	if err != nil {
		t.Fatalf("WithConfig() error = %v", err)
	}
	if exported != `{"DATA_SOURCES":["CUSTOMERS","TEST"]}` {
		t.Errorf("ExportConfig() = %s", exported)
	}

	err = config.WithConfig(ctx, exported, func(h ConfigHandle) error {
		sources, err := config.GetDataSources(ctx, h)
		if err != nil {
			return err
		}
		if !strings.Contains(sources, "CUSTOMERS") || strings.Contains(sources, "SEARCH") {
			t.Errorf("GetDataSources() = %s", sources)
		}
		_, err = config.AddDataSource(ctx, h, "TEST")
		return err
	})
	if !failure.IsBadInput(err) {
		t.Errorf("duplicate AddDataSource() error = %v, want bad-input", err)
	}

	if err := config.CloseConfig(ctx, ConfigHandle(9999)); !failure.IsBadInput(err) {
		t.Errorf("CloseConfig(unknown) error = %v, want bad-input", err)
	}
}

func TestConfigManagerDefaults(t *testing.T) {
	inst := newTestInstance(t, nativetest.New(), nil)
	ctx := context.Background()

	manager, err := inst.ConfigManager(ctx)
	if err != nil {
		t.Fatalf("ConfigManager() error = %v", err)
	}

	current, err := manager.GetDefaultConfigID(ctx)
	if err != nil || current != 1001 {
		t.Fatalf("GetDefaultConfigID() = %d, %v", current, err)
	}

	id, err := manager.SetDefaultConfig(ctx, `{"G2_CONFIG":{"CFG_DSRC":["CUSTOMERS"]}}`, "customers")
	if err != nil {
		t.Fatalf("SetDefaultConfig() error = %v", err)
	}
	if got, _ := manager.GetDefaultConfigID(ctx); got != id {
		t.Errorf("default = %d, want %d", got, id)
	}
	def, err := manager.GetConfig(ctx, id)
	if err != nil || !strings.Contains(def, "CUSTOMERS") {
		t.Errorf("GetConfig() = %s, %v", def, err)
	}
	configs, err := manager.GetConfigs(ctx)
	if err != nil || !strings.Contains(configs, strconv.FormatInt(id, 10)) {
		t.Errorf("GetConfigs() = %s, %v", configs, err)
	}

	tests := []struct {
		name      string
		currentID int64
		newID     int64
		wantKind  failure.Kind
	}{
		{"stale current", current, current, failure.KindReplaceConflict},
		{"unknown new", id, 5555, failure.KindConfiguration},
		{"swap back", id, current, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ReplaceDefaultConfigID(ctx, tt.currentID, tt.newID)
			if failure.KindOf(err) != tt.wantKind {
				t.Errorf("ReplaceDefaultConfigID() error = %v, want kind %q", err, tt.wantKind)
			}
		})
	}
	if got, _ := manager.GetDefaultConfigID(ctx); got != current {
		t.Errorf("default = %d after swap back, want %d", got, current)
	}
}

func TestDiagnostic(t *testing.T) {
	lib := nativetest.New()
	inst, engine := newTestEngine(t, lib, nil)
	ctx := context.Background()

	diagnostic, err := inst.Diagnostic(ctx)
	if err != nil {
		t.Fatalf("Diagnostic() error = %v", err)
	}
	if _, err := engine.AddRecord(ctx, "TEST", "1", `{}`, 0); err != nil {
		t.Fatal(err)
	}

	info, err := diagnostic.GetDatastoreInfo(ctx)
	if err != nil || !strings.Contains(info, "dataStores") {
		t.Errorf("GetDatastoreInfo() = %s, %v", info, err)
	}
	perf, err := diagnostic.CheckDatastorePerformance(ctx, 1)
	if err != nil || !json.Valid([]byte(perf)) {
		t.Errorf("CheckDatastorePerformance() = %s, %v", perf, err)
	}
	feature, err := diagnostic.GetFeature(ctx, 12)
	if err != nil || !strings.Contains(feature, `"LIB_FEAT_ID":12`) {
		t.Errorf("GetFeature() = %s, %v", feature, err)
	}

	if err := diagnostic.PurgeRepository(ctx); err != nil {
		t.Fatalf("PurgeRepository() error = %v", err)
	}
	if _, err := engine.GetRecord(ctx, "TEST", "1", 0); !failure.IsNotFound(err) {
		t.Errorf("GetRecord() after purge error = %v, want not-found", err)
	}
}
