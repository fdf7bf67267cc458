package events

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func headerValue(t *testing.T, headers map[string]string, key string) string {
	t.Helper()
	v, ok := headers[key]
	if !ok {
		t.Fatalf("missing header %q", key)
	}
	return v
}

func TestBuildMessage(t *testing.T) {
	ev := New(AppointmentCreated, "appt-1", map[string]string{"status": "pending"})

	msg, err := buildMessage(context.Background(), ev)
	if err != nil {
		t.Fatalf("buildMessage error: %v", err)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("key = %q, want %q", msg.Key, "appt-1")
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if got := headerValue(t, headers, "event_id"); got != ev.ID {
		t.Fatalf("event_id = %q, want %q", got, ev.ID)
	}
	if got := headerValue(t, headers, "event_type"); got != AppointmentCreated {
		t.Fatalf("event_type = %q, want %q", got, AppointmentCreated)
	}

	var decoded struct {
		Type        string            `json:"event_type"`
		AggregateID string            `json:"aggregate_id"`
		Data        map[string]string `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload decode error: %v", err)
	}
	if decoded.Type != AppointmentCreated || decoded.AggregateID != "appt-1" || decoded.Data["status"] != "pending" {
		t.Fatalf("payload = %+v", decoded)
	}
}

func TestBuildMessage_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	msg, err := buildMessage(ctx, New(SlotOrphaned, "svc:2030-03-04:09:00", nil))
	if err != nil {
		t.Fatalf("buildMessage error: %v", err)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if got := headerValue(t, headers, "traceparent"); got != want {
		t.Fatalf("traceparent = %q, want %q", got, want)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	want := []string{"a:9092", "b:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitBrokers = %v, want %v", got, want)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("SplitBrokers(\"\") should be nil")
	}
}

func TestNewPublisher_WithoutBrokersIsNoop(t *testing.T) {
	p := NewPublisher(KafkaConfig{}, nil)
	if _, ok := p.(Noop); !ok {
		t.Fatalf("publisher type = %T, want Noop", p)
	}
	if err := p.Publish(context.Background(), New(AppointmentDeleted, "x", nil)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
}
