// Package nativetest provides an in-memory native.Library for tests.
//
// The fake keeps just enough state to answer every call plausibly: records
// resolve one-to-one into entities, configurations live in a registry, and
// exports and redo records are plain queues. It counts object creation,
// initialization, destruction and calls, and can be told to fail a call
// with a given engine code.
package nativetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/erbridge/erbridge/pkg/native"
)

// Engine error codes the fake reports.
const (
	CodeNotInitialized    int64 = 48
	CodeUnknownRecord     int64 = 33
	CodeUnknownEntity     int64 = 37
	CodeUnknownDataSource int64 = 2207
	CodeBadInput          int64 = 7
	CodeUnknownConfig     int64 = 7221
	CodeReplaceConflict   int64 = 7245
)

// statusFailed is the status returned for every failed call.
const statusFailed int64 = -2

// Object kinds used as counter keys.
const (
	KindProduct       = "Product"
	KindConfig        = "Config"
	KindConfigManager = "ConfigManager"
	KindDiagnostic    = "Diagnostic"
	KindEngine        = "Engine"
)

type injected struct {
	code    int64
	message string
	times   int
}

type record struct {
	DataSource string
	ID         string
	JSON       string
	EntityID   int64
}

type configDoc struct {
	dataSources map[string]bool
}

// Library is an in-memory native.Library. The zero value is not usable;
// call New.
type Library struct {
	mu sync.Mutex

	created  map[string]int
	inits    map[string]int
	destroys map[string]int
	calls    map[string]int
	failures map[string]*injected
	closed   bool

	// OnCall, when set, runs at the start of every call with the object
	// kind and operation name. It runs on the calling goroutine without the
	// library lock held.
	OnCall func(kind, op string)

	records     map[string]*record
	nextEntity  int64
	dataSources map[string]bool

	configs         map[int64]string
	nextConfigID    int64
	defaultConfigID int64
	activeConfigID  int64

	handles    map[int64]*configDoc
	exports    map[int64][]string
	nextHandle int64

	redo []string
}

var _ native.Library = (*Library)(nil)

// New returns a fake library with data sources TEST and SEARCH registered
// and one default configuration.
func New() *Library {
	l := &Library{
		created:     make(map[string]int),
		inits:       make(map[string]int),
		destroys:    make(map[string]int),
		calls:       make(map[string]int),
		failures:    make(map[string]*injected),
		records:     make(map[string]*record),
		nextEntity:  1,
		dataSources: map[string]bool{"TEST": true, "SEARCH": true},
		configs:     make(map[int64]string),
		handles:     make(map[int64]*configDoc),
		exports:     make(map[int64][]string),
		nextHandle:  1,
	}
	l.nextConfigID = 1001
	l.defaultConfigID = l.addConfigLocked(`{"G2_CONFIG":{}}`)
	l.activeConfigID = l.defaultConfigID
	return l
}

// Fail makes the next times calls of kind.op fail with code and message.
// times <= 0 fails every call until Reset.
func (l *Library) Fail(kind, op string, code int64, message string, times int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[kind+"."+op] = &injected{code: code, message: message, times: times}
}

// Reset clears injected failures.
func (l *Library) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = make(map[string]*injected)
}

// Created returns how many objects of kind were created.
func (l *Library) Created(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created[kind]
}

// Inits returns how many times objects of kind were initialized.
func (l *Library) Inits(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inits[kind]
}

// Destroys returns how many times objects of kind were destroyed.
func (l *Library) Destroys(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroys[kind]
}

// Calls returns how many times kind.op was called.
func (l *Library) Calls(kind, op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[kind+"."+op]
}

// TotalCalls returns the number of calls across all objects.
func (l *Library) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// Closed reports whether Close was called.
func (l *Library) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// AddDataSource registers a data source code.
func (l *Library) AddDataSource(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dataSources[code] = true
}

// QueueRedo appends a redo record.
func (l *Library) QueueRedo(redo string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redo = append(l.redo, redo)
}

func (l *Library) newBase(kind string) (*base, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("nativetest: library closed")
	}
	l.created[kind]++
	return &base{lib: l, kind: kind}, nil
}

// NewProduct implements native.Library.
func (l *Library) NewProduct(ctx context.Context) (native.Product, error) {
	b, err := l.newBase(KindProduct)
	if err != nil {
		return nil, err
	}
	return &Product{b}, nil
}

// NewConfig implements native.Library.
func (l *Library) NewConfig(ctx context.Context) (native.Config, error) {
	b, err := l.newBase(KindConfig)
	if err != nil {
		return nil, err
	}
	return &Config{b}, nil
}

// NewConfigManager implements native.Library.
func (l *Library) NewConfigManager(ctx context.Context) (native.ConfigManager, error) {
	b, err := l.newBase(KindConfigManager)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{b}, nil
}

// NewDiagnostic implements native.Library.
func (l *Library) NewDiagnostic(ctx context.Context) (native.Diagnostic, error) {
	b, err := l.newBase(KindDiagnostic)
	if err != nil {
		return nil, err
	}
	return &Diagnostic{b}, nil
}

// NewEngine implements native.Library.
func (l *Library) NewEngine(ctx context.Context) (native.Engine, error) {
	b, err := l.newBase(KindEngine)
	if err != nil {
		return nil, err
	}
	return &Engine{b}, nil
}

// Close implements native.Library.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Library) addConfigLocked(definition string) int64 {
	id := l.nextConfigID
	l.nextConfigID++
	l.configs[id] = definition
	return id
}

func (l *Library) newHandleLocked() int64 {
	h := l.nextHandle
	l.nextHandle++
	return h
}

// base carries the exception side channel and call bookkeeping shared by
// every fake object.
type base struct {
	lib  *Library
	kind string

	mu          sync.Mutex
	code        int64
	message     string
	initialized bool
}

func (b *base) LastExceptionCode() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code
}

func (b *base) LastException() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message
}

func (b *base) ClearLastException() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code, b.message = 0, ""
}

// fail records an engine exception and returns the failed status.
func (b *base) fail(code int64, format string, args ...any) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code = code
	b.message = fmt.Sprintf("%04dE|", code) + fmt.Sprintf(format, args...)
	return statusFailed
}

// begin counts the call, runs the hook and applies injected failures. It
// returns a non-zero status when the call must fail.
func (b *base) begin(op string) int64 {
	key := b.kind + "." + op

	b.lib.mu.Lock()
	b.lib.calls[key]++
	hook := b.lib.OnCall
	inj := b.lib.failures[key]
	var code int64
	var message string
	if inj != nil {
		code, message = inj.code, inj.message
		if inj.times > 0 {
			inj.times--
			if inj.times == 0 {
				delete(b.lib.failures, key)
			}
		}
	}
	b.lib.mu.Unlock()

	if hook != nil {
		hook(b.kind, op)
	}
	if inj != nil {
		return b.fail(code, "%s", message)
	}

	b.mu.Lock()
	ready := b.initialized
	b.mu.Unlock()
	if !ready && op != "Init" && op != "InitWithConfigID" {
		return b.fail(CodeNotInitialized, "%s not initialized", b.kind)
	}
	return 0
}

func (b *base) init(op string) int64 {
	if st := b.begin(op); st != 0 {
		return st
	}
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()

	b.lib.mu.Lock()
	b.lib.inits[b.kind]++
	b.lib.mu.Unlock()
	return 0
}

func (b *base) destroy() int64 {
	if st := b.begin("Destroy"); st != 0 {
		return st
	}
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()

	b.lib.mu.Lock()
	b.lib.destroys[b.kind]++
	b.lib.mu.Unlock()
	return 0
}

func document(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("nativetest: marshal: %v", err))
	}
	return string(data)
}

func ok(response string) native.Result {
	return native.Result{Response: response}
}

func failed(status int64) native.Result {
	return native.Result{Status: status}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
