package logger

import (
	"errors"
	"reflect"
	"testing"
)

type recordingInstance struct {
	calls   []string
	keyvals [][]any
	closed  bool
	failing bool
}

func (r *recordingInstance) record(level string, keyvals []any) {
	r.calls = append(r.calls, level)
	r.keyvals = append(r.keyvals, keyvals)
}

func (r *recordingInstance) Log(message string, keyvals ...any)   { r.record("log", keyvals) }
func (r *recordingInstance) Debug(message string, keyvals ...any) { r.record("debug", keyvals) }
func (r *recordingInstance) Info(message string, keyvals ...any)  { r.record("info", keyvals) }
func (r *recordingInstance) Warn(message string, keyvals ...any)  { r.record("warn", keyvals) }
func (r *recordingInstance) Error(message string, keyvals ...any) { r.record("error", keyvals) }
func (r *recordingInstance) Fatal(message string, keyvals ...any) { r.record("fatal", keyvals) }

func (r *recordingInstance) Close() error {
	r.closed = true
	if r.failing {
		return errors.New("close failed")
	}
	return nil
}

func TestDispatchToAllInstances(t *testing.T) {
	a := &recordingInstance{}
	b := &recordingInstance{}
	Init(a, b)
	defer Init()

	Log("log", "k", 1)
	Debug("debug")
	Info("info", "k", 2)
	Warn("warn")
	Error("error")

	want := []string{"log", "debug", "info", "warn", "error"}
	for _, inst := range []*recordingInstance{a, b} {
		if !reflect.DeepEqual(inst.calls, want) {
			t.Fatalf("calls = %v, want %v", inst.calls, want)
		}
		if !reflect.DeepEqual(inst.keyvals[0], []any{"k", 1}) {
			t.Fatalf("Log keyvals = %v, want [k 1]", inst.keyvals[0])
		}
	}
}

func TestCloseReportsFirstError(t *testing.T) {
	a := &recordingInstance{failing: true}
	b := &recordingInstance{}
	Init(a, b)
	defer Init()

	if err := Close(); err == nil {
		t.Fatal("expected close error")
	}
	if !a.closed || !b.closed {
		t.Fatal("expected every instance to be closed")
	}
}

func TestNoInitIsNoop(t *testing.T) {
	singleton = nil
	Info("dropped")
	if err := Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
