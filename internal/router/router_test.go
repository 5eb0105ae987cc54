package router

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/metrics"
)

func raw(s string) connection.RawMessage {
	return connection.RawMessage{Data: []byte(s), ReceivedAt: time.Unix(1700000000, 0)}
}

// recorder collects onUpdate calls.
type recorder struct {
	mu     sync.Mutex
	states []any
	events []Event
}

func (rec *recorder) update(state any, ev Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.states = append(rec.states, state)
	rec.events = append(rec.events, ev)
}

func (rec *recorder) len() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.events)
}

func TestRouter_StartStop(t *testing.T) {
	input := make(chan connection.RawMessage, 10)
	r := NewRouter(input, WithLogger(slog.Default()))

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestRouter_StopsWhenInputCloses(t *testing.T) {
	input := make(chan connection.RawMessage)
	r := NewRouter(input)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	close(input)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestRegister_RequiresTypes(t *testing.T) {
	r := NewRouter(nil)

	if _, err := r.Register(nil, nil); !errors.Is(err, ErrNoEventTypes) {
		t.Errorf("Register(nil) = %v, want ErrNoEventTypes", err)
	}
	if _, err := r.Register([]string{""}, nil); !errors.Is(err, ErrNoEventTypes) {
		t.Errorf("Register(empty type) = %v, want ErrNoEventTypes", err)
	}
}

func TestDispatch_ReplacesStateWithoutTransform(t *testing.T) {
	r := NewRouter(nil)
	rec := &recorder{}
	reg, err := r.Register([]string{"alert"}, rec.update)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Dispatch(raw(`{"type":"alert","data":{"id":"a1","title":"Disk"}}`))
	r.Dispatch(raw(`{"type":"alert","data":{"id":"a2"}}`))

	state, ok := reg.State().(map[string]any)
	if !ok {
		t.Fatalf("state type = %T, want map", reg.State())
	}
	if state["id"] != "a2" {
		t.Errorf("id = %v, want a2", state["id"])
	}
	if _, ok := state["title"]; ok {
		t.Error("payload should replace state wholesale")
	}
	if rec.len() != 2 {
		t.Errorf("updates = %d, want 2", rec.len())
	}
}

// A transform patch is merged key-wise into existing state.
func TestDispatch_MergesTransformPatch(t *testing.T) {
	r := NewRouter(nil)
	rec := &recorder{}
	reg, err := r.Register([]string{"dashboard_update"}, rec.update,
		WithInitialState(map[string]any{"users": 10.0, "orders": 5.0}),
		WithTransform(func(ev Event) map[string]any {
			var patch map[string]any
			if err := ev.Decode(&patch); err != nil {
				return nil
			}
			return patch
		}),
	)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Dispatch(raw(`{"type":"dashboard_update","data":{"orders":7}}`))

	state := reg.State().(map[string]any)
	if state["users"] != 10.0 {
		t.Errorf("users = %v, want 10", state["users"])
	}
	if state["orders"] != 7.0 {
		t.Errorf("orders = %v, want 7", state["orders"])
	}
}

func TestDispatch_IgnoresOtherTypesAndFiltered(t *testing.T) {
	r := NewRouter(nil)
	rec := &recorder{}
	_, err := r.Register([]string{"alert"}, rec.update, WithFilter(func(ev Event) bool {
		return ev.ID != "skip"
	}))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Dispatch(raw(`{"type":"activity","data":{}}`))
	r.Dispatch(raw(`{"type":"alert","id":"skip","data":{}}`))
	r.Dispatch(raw(`{"type":"alert","id":"keep","data":{}}`))

	if rec.len() != 1 {
		t.Fatalf("updates = %d, want 1", rec.len())
	}
	if rec.events[0].ID != "keep" {
		t.Errorf("ID = %q, want keep", rec.events[0].ID)
	}

	stats := r.Stats()
	if stats.MessagesReceived != 3 {
		t.Errorf("MessagesReceived = %d, want 3", stats.MessagesReceived)
	}
	if stats.Ignored != 2 {
		t.Errorf("Ignored = %d, want 2", stats.Ignored)
	}
	if stats.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", stats.Dispatched)
	}
}

func TestDispatch_MalformedDropped(t *testing.T) {
	r := NewRouter(nil)
	rec := &recorder{}
	if _, err := r.Register([]string{"alert"}, rec.update); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Dispatch(raw(`not json`))
	r.Dispatch(raw(`{"data":{}}`))
	r.Dispatch(raw(`{"type":"alert","data":{"ok":true}}`))

	if rec.len() != 1 {
		t.Errorf("updates = %d, want 1", rec.len())
	}
	if got := r.Stats().ParseErrors; got != 2 {
		t.Errorf("ParseErrors = %d, want 2", got)
	}
}

func TestParseEvent_Errors(t *testing.T) {
	_, err := parseEvent([]byte(`{"type":`), time.Now())
	var malformed *MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedEventError", err)
	}

	_, err = parseEvent([]byte(`{"data":1}`), time.Now())
	if !errors.Is(err, errMissingType) {
		t.Errorf("err = %v, want missing type", err)
	}
}

func TestParseEvent_Timestamps(t *testing.T) {
	received := time.Unix(1700000000, 0)
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `{"type":"x","timestamp":"2024-01-15T10:30:00Z"}`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"unix millis", `{"type":"x","timestamp":1705314600000}`, time.UnixMilli(1705314600000)},
		{"millis string", `{"type":"x","timestamp":"1705314600000"}`, time.UnixMilli(1705314600000)},
		{"missing", `{"type":"x"}`, received},
		{"garbage", `{"type":"x","timestamp":"yesterday"}`, received},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseEvent([]byte(tt.in), received)
			if err != nil {
				t.Fatalf("parseEvent failed: %v", err)
			}
			if !ev.Timestamp.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", ev.Timestamp, tt.want)
			}
			if !ev.ReceivedAt.Equal(received) {
				t.Errorf("ReceivedAt = %v, want %v", ev.ReceivedAt, received)
			}
		})
	}
}

func TestParseEvent_IDs(t *testing.T) {
	tests := map[string]string{
		`{"type":"x","id":"abc"}`: "abc",
		`{"type":"x","id":42}`:    "42",
		`{"type":"x","id":null}`:  "",
		`{"type":"x"}`:            "",
	}
	for in, want := range tests {
		ev, err := parseEvent([]byte(in), time.Now())
		if err != nil {
			t.Fatalf("parseEvent(%s) failed: %v", in, err)
		}
		if ev.ID != want {
			t.Errorf("parseEvent(%s).ID = %q, want %q", in, ev.ID, want)
		}
	}
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	r := NewRouter(nil)
	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		if _, err := r.Register([]string{"tick"}, func(any, Event) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	r.Dispatch(raw(`{"type":"tick"}`))

	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	r := NewRouter(nil)
	rec := &recorder{}
	reg, err := r.Register([]string{"alert"}, rec.update)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Dispatch(raw(`{"type":"alert","data":1}`))
	reg.Unsubscribe()
	reg.Unsubscribe()
	r.Dispatch(raw(`{"type":"alert","data":2}`))

	if rec.len() != 1 {
		t.Errorf("updates = %d, want 1", rec.len())
	}
	if reg.State() != 1.0 {
		t.Errorf("state = %v, want 1", reg.State())
	}
}

func TestRouter_PreservesArrivalOrder(t *testing.T) {
	input := make(chan connection.RawMessage, 100)
	r := NewRouter(input)
	rec := &recorder{}
	if _, err := r.Register([]string{"seq"}, rec.update); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(ctx)

	for i := 0; i < 50; i++ {
		input <- raw(`{"type":"seq","data":` + strconv.Itoa(i) + `}`)
	}

	deadline := time.Now().Add(time.Second)
	for rec.len() < 50 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.len() != 50 {
		t.Fatalf("updates = %d, want 50", rec.len())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, s := range rec.states {
		if s != float64(i) {
			t.Errorf("state[%d] = %v, want %d", i, s, i)
		}
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRouterMetrics(reg)
	r := NewRouter(nil, WithMetrics(m))
	if _, err := r.Register([]string{"alert"}, nil); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Dispatch(raw(`{"type":"alert"}`))
	r.Dispatch(raw(`{"type":"other"}`))
	r.Dispatch(raw(`{`))

	if got := testutil.ToFloat64(m.Received); got != 3 {
		t.Errorf("received = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Dispatched); got != 1 {
		t.Errorf("dispatched = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Ignored); got != 1 {
		t.Errorf("ignored = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ParseErrors); got != 1 {
		t.Errorf("parse errors = %v, want 1", got)
	}
}
