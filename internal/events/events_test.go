package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/redis/redistest"
)

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{`{"type":"like","user_id":"u1","item_id":"i1"}`, "u1"},
		{`{"type":"like","user_id":42,"item_id":7}`, "42"},
		{`{"type":"like","user_id":"42","item_id":7}`, "42"},
		{`{"type":"like","user_id":42.0,"item_id":7}`, "42"},
		{`{"type":"like","user_id":4.2e1,"item_id":7}`, "42"},
		{`{"type":"like","user_id":-0,"item_id":7}`, "0"},
		{`{"type":"like","user_id":2.50,"item_id":7}`, "2.5"},
		{`{"type":"like","user_id":123456789012345678901234,"item_id":7}`, "123456789012345678901234"},
		{`{"type":"like","user_id":" spaced ","item_id":"i"}`, "spaced"},
		{`{"type":"like","user_id":null,"item_id":"i"}`, ""},
	}
	for _, tt := range tests {
		var ev Event
		if err := json.Unmarshal([]byte(tt.in), &ev); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if ev.UserID != tt.want {
			t.Errorf("UserID from %s = %q, want %q", tt.in, ev.UserID, tt.want)
		}
	}

	var ev Event
	if err := json.Unmarshal([]byte(`{"user_id":true}`), &ev); err == nil {
		t.Error("boolean id should fail to decode")
	}
}

func TestValidate(t *testing.T) {
	neg := int64(-1)
	tests := []struct {
		name   string
		ev     Event
		fields []string
	}{
		{"like ok", Event{Type: Like, UserID: "u", ItemID: "i"}, nil},
		{"like needs item", Event{Type: Like, UserID: "u"}, []string{"item_id"}},
		{"pass needs user", Event{Type: Pass, ItemID: "i"}, []string{"user_id"}},
		{"activate ok", Event{Type: Activate, ItemID: "i"}, nil},
		{"view debt needs users", Event{Type: ViewDebt}, []string{"users"}},
		{"view debt empty user", Event{Type: ViewDebt, Users: []ID{"a", ""}}, []string{"users"}},
		{"view debt user with separator", Event{Type: ViewDebt, Users: []ID{"a", "b:liked"}}, []string{"users"}},
		{"missing type", Event{UserID: "u"}, []string{"type"}},
		{"unknown type", Event{Type: "rate", UserID: "u"}, []string{"type"}},
		{"separator in id", Event{Type: Like, UserID: "a:b", ItemID: "i"}, []string{"user_id"}},
		{"negative likes", Event{Type: Like, UserID: "u", ItemID: "i", Likes: &neg}, []string{"likes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("error %v should wrap ErrInvalidInput", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not a ValidationError", err)
			}
			for _, f := range tt.fields {
				if _, ok := ve.Fields[f]; !ok {
					t.Errorf("missing field error for %s in %v", f, ve.Fields)
				}
			}
		})
	}
}

func TestKeyOrdersPerUser(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Type: Like, UserID: "u1", ItemID: "i1"}, "user:u1"},
		{Event{Type: Pass, UserID: "u1", ItemID: "i2"}, "user:u1"},
		{Event{Type: Activate, ItemID: "i1"}, "item:i1"},
		{Event{Type: ViewDebt, Users: []ID{"a"}}, "view_debt"},
	}
	for _, tt := range tests {
		if got := tt.ev.Key(); got != tt.want {
			t.Errorf("Key(%s) = %q, want %q", tt.ev.Type, got, tt.want)
		}
	}
}

type call struct {
	op, user, item string
	opts           int
}

type fakeTarget struct {
	mu    sync.Mutex
	calls []call
	fail  int
	err   error
}

func (f *fakeTarget) record(op, user, item string, opts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return f.err
	}
	f.calls = append(f.calls, call{op, user, item, opts})
	return nil
}

func (f *fakeTarget) RecordLike(_ context.Context, user, item string, opts ...engine.RatingOption) error {
	return f.record("like", user, item, len(opts))
}
func (f *fakeTarget) RecordDislike(_ context.Context, user, item string, opts ...engine.RatingOption) error {
	return f.record("dislike", user, item, len(opts))
}
func (f *fakeTarget) UndoLike(_ context.Context, user, item string) error {
	return f.record("unlike", user, item, 0)
}
func (f *fakeTarget) UndoDislike(_ context.Context, user, item string) error {
	return f.record("undislike", user, item, 0)
}
func (f *fakeTarget) RecordPass(_ context.Context, user, item string) error {
	return f.record("pass", user, item, 0)
}
func (f *fakeTarget) ActivateItem(_ context.Context, item string, _ time.Time) error {
	return f.record("activate", "", item, 0)
}
func (f *fakeTarget) DeactivateItem(_ context.Context, item string) error {
	return f.record("deactivate", "", item, 0)
}
func (f *fakeTarget) FlagForViewDebt(_ context.Context, users []string) error {
	return f.record("view_debt", fmt.Sprint(users), "", 0)
}

func TestApplyDispatches(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	likes, dislikes := int64(3), int64(1)
	noRecs := false

	f := &fakeTarget{}
	evs := []Event{
		{Type: Like, UserID: "u", ItemID: "i"},
		{Type: Dislike, UserID: "u", ItemID: "j", Likes: &likes, Dislikes: &dislikes, Timestamp: &at, UpdateRecs: &noRecs},
		{Type: Unlike, UserID: "u", ItemID: "i"},
		{Type: Undislike, UserID: "u", ItemID: "j"},
		{Type: Pass, UserID: "u", ItemID: "k"},
		{Type: Activate, ItemID: "k", Timestamp: &at},
		{Type: Deactivate, ItemID: "k"},
		{Type: ViewDebt, Users: []ID{"a", "b"}},
	}
	for _, ev := range evs {
		if err := Apply(ctx, f, ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Type, err)
		}
	}
	want := []call{
		{"like", "u", "i", 0},
		{"dislike", "u", "j", 2},
		{"unlike", "u", "i", 0},
		{"undislike", "u", "j", 0},
		{"pass", "u", "k", 0},
		{"activate", "", "k", 0},
		{"deactivate", "", "k", 0},
		{"view_debt", "[a b]", "", 0},
	}
	if !reflect.DeepEqual(f.calls, want) {
		t.Errorf("calls = %v\nwant    %v", f.calls, want)
	}

	if err := Apply(ctx, f, Event{Type: "rate"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("unknown type err = %v, want ErrInvalidInput", err)
	}
}

type fakeSink struct {
	events []kafka.Event
	err    error
}

func (s *fakeSink) Publish(_ context.Context, ev kafka.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	p := NewPublisher(sink)

	if err := p.Publish(ctx, Event{Type: Like, UserID: "u1", ItemID: "i1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Key != "user:u1" {
		t.Fatalf("published %v, want one event keyed user:u1", sink.events)
	}

	if err := p.Publish(ctx, Event{Type: Like}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("invalid event err = %v, want ErrInvalidInput", err)
	}
	if len(sink.events) != 1 {
		t.Error("invalid event must not be published")
	}

	sink.err = errors.New("broker down")
	if err := p.Publish(ctx, Event{Type: Pass, UserID: "u", ItemID: "i"}); err == nil {
		t.Error("sink failure should surface")
	}
}

type fakeLog struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (l *fakeLog) Append(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, ev)
	return nil
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		EventTimeout:        time.Second,
		RetryAttempts:       3,
		RetryInitialDelay:   time.Millisecond,
		BreakerThreshold:    10,
		BreakerResetTimeout: time.Minute,
	}
}

func TestHandlerDropsBadMessages(t *testing.T) {
	f := &fakeTarget{}
	h := NewHandler(f, nil, testWorkerConfig(), nil)
	ctx := context.Background()

	for _, value := range []string{`not json`, `{"type":"like"}`, `{"type":"teleport","user_id":"u"}`} {
		if err := h.Handle(ctx, nil, []byte(value)); err != nil {
			t.Errorf("Handle(%s) = %v, want nil (dropped)", value, err)
		}
	}
	if len(f.calls) != 0 {
		t.Errorf("dropped messages reached the engine: %v", f.calls)
	}
}

func TestHandlerRetriesStoreOutage(t *testing.T) {
	f := &fakeTarget{fail: 2, err: apperrors.Store("sadd", errors.New("connection refused"))}
	log := &fakeLog{}
	h := NewHandler(f, log, testWorkerConfig(), nil)

	msg := []byte(`{"type":"like","user_id":"u1","item_id":"i1"}`)
	if err := h.Handle(context.Background(), []byte("user:u1"), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("calls = %v, want one successful like", f.calls)
	}
	if len(log.events) != 1 || log.events[0].ItemID != "i1" {
		t.Errorf("event log = %v, want the applied like", log.events)
	}
}

func TestHandlerReturnsPersistentOutage(t *testing.T) {
	f := &fakeTarget{fail: 100, err: apperrors.Store("sadd", errors.New("connection refused"))}
	log := &fakeLog{}
	h := NewHandler(f, log, testWorkerConfig(), nil)

	msg := []byte(`{"type":"pass","user_id":"u1","item_id":"i1"}`)
	err := h.Handle(context.Background(), nil, msg)
	if !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("Handle err = %v, want ErrStoreUnavailable for redelivery", err)
	}
	if f.fail != 97 {
		t.Errorf("attempts = %d, want 3", 100-f.fail)
	}
	if len(log.events) != 0 {
		t.Error("failed event must not be logged")
	}
}

func TestHandlerDoesNotRetryOtherErrors(t *testing.T) {
	f := &fakeTarget{fail: 100, err: errors.New("boom")}
	h := NewHandler(f, nil, testWorkerConfig(), nil)

	msg := []byte(`{"type":"like","user_id":"u1","item_id":"i1"}`)
	if err := h.Handle(context.Background(), nil, msg); err == nil {
		t.Fatal("expected error")
	}
	if f.fail != 99 {
		t.Errorf("attempts = %d, want 1", 100-f.fail)
	}
}

func TestHandlerAppendFailureStillCommits(t *testing.T) {
	f := &fakeTarget{}
	log := &fakeLog{err: errors.New("pq: connection reset")}
	h := NewHandler(f, log, testWorkerConfig(), nil)

	msg := []byte(`{"type":"activate","item_id":"i1"}`)
	if err := h.Handle(context.Background(), nil, msg); err != nil {
		t.Errorf("Handle = %v, want nil once the engine applied the event", err)
	}
}

func TestHandlerAgainstEngine(t *testing.T) {
	rs, _ := redistest.NewStore(t)
	eng, err := engine.New(rs, config.DefaultEngine(), nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(eng, nil, testWorkerConfig(), nil)
	ctx := context.Background()

	for _, msg := range []string{
		`{"type":"like","user_id":1,"item_id":"a"}`,
		`{"type":"like","user_id":"2","item_id":"a"}`,
		`{"type":"dislike","user_id":"2","item_id":"b"}`,
		`{"type":"unlike","user_id":"2","item_id":"a"}`,
	} {
		if err := h.Handle(ctx, nil, []byte(msg)); err != nil {
			t.Fatalf("Handle(%s): %v", msg, err)
		}
	}
	likers, err := eng.LikedBy(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(likers, []string{"1"}) {
		t.Errorf("LikedBy(a) = %v, want [1]", likers)
	}
	if n, _ := eng.DislikedCount(ctx, "b"); n != 1 {
		t.Errorf("DislikedCount(b) = %d, want 1", n)
	}
}
