package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)

	e.Emit(Event{RunID: "run-1", Step: 2, NodeID: "retrieve", Msg: "node completed"})

	out := buf.String()
	for _, want := range []string{"[node completed]", "runID=run-1", "step=2", "nodeID=retrieve"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{
		RunID:  "run-1",
		Step:   3,
		NodeID: "respond",
		Msg:    "node completed",
		Meta:   map[string]interface{}{"attempt": 2},
	})

	var decoded struct {
		RunID  string                 `json:"runID"`
		Step   int                    `json:"step"`
		NodeID string                 `json:"nodeID"`
		Msg    string                 `json:"msg"`
		Meta   map[string]interface{} `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.RunID != "run-1" || decoded.Step != 3 || decoded.NodeID != "respond" {
		t.Errorf("unexpected event: %+v", decoded)
	}
	if decoded.Meta["attempt"] != float64(2) {
		t.Errorf("meta not preserved: %v", decoded.Meta)
	}
}

func TestNullEmitter(t *testing.T) {
	// Must not panic on any event.
	var e NullEmitter
	e.Emit(Event{})
	e.Emit(Event{RunID: "run-1", Msg: "something"})
}

func TestOTelEmitter(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	e := NewOTelEmitter(provider)
	e.Emit(Event{
		RunID:  "run-1",
		Step:   1,
		NodeID: "embed",
		Msg:    "node completed",
		Meta:   map[string]interface{}{"chunks": 20},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "node completed" {
		t.Errorf("span name = %q", span.Name())
	}

	attrs := map[string]interface{}{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["homer.run_id"] != "run-1" {
		t.Errorf("run_id attribute = %v", attrs["homer.run_id"])
	}
	if attrs["homer.node_id"] != "embed" {
		t.Errorf("node_id attribute = %v", attrs["homer.node_id"])
	}
	if attrs["homer.meta.chunks"] != int64(20) {
		t.Errorf("meta attribute = %v", attrs["homer.meta.chunks"])
	}
}

func TestOTelEmitterEmptyMsg(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	NewOTelEmitter(provider).Emit(Event{RunID: "run-1"})

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "pipeline event" {
		t.Fatalf("expected default span name, got %v", spans)
	}
}
