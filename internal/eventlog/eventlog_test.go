package eventlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	port := 5432
	if v, err := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT")); err == nil {
		port = v
	}
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "recengine_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "recengine"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newTestLog(t *testing.T) *Log {
	t.Helper()
	db := skipIfNoPostgres(t)
	l := New(db)
	l.table = fmt.Sprintf("rating_events_test_%d", time.Now().UnixNano())
	ctx := context.Background()
	if err := l.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), "DROP TABLE IF EXISTS "+l.table)
	})
	return l
}

func TestAppendRecentReplay(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	if err := l.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema should be idempotent: %v", err)
	}
	appended := []events.Event{
		{Type: events.Like, UserID: "u1", ItemID: "a"},
		{Type: events.Dislike, UserID: "u2", ItemID: "a"},
		{Type: events.ViewDebt, Users: []events.ID{"u1", "u2"}},
	}
	for _, ev := range appended {
		if err := l.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Event.Type != events.ViewDebt {
		t.Fatalf("Recent(2) = %+v, want view_debt first", recent)
	}
	if recent[0].ReceivedAt.IsZero() {
		t.Error("received_at should default to now")
	}

	var replayed []events.Event
	n, err := l.Replay(ctx, func(rec Record) error {
		replayed = append(replayed, rec.Event)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != len(appended) {
		t.Fatalf("replayed %d events, want %d", n, len(appended))
	}
	for i, ev := range replayed {
		if ev.Type != appended[i].Type || ev.UserID != appended[i].UserID {
			t.Errorf("replay[%d] = %+v, want %+v", i, ev, appended[i])
		}
	}
	if len(replayed[2].Users) != 2 {
		t.Errorf("view debt users lost in the round trip: %v", replayed[2].Users)
	}
}

func TestReplayStopsOnError(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Append(ctx, events.Event{Type: events.Pass, UserID: "u", ItemID: events.ID(strconv.Itoa(i))}); err != nil {
			t.Fatal(err)
		}
	}
	stop := errors.New("stop")
	n, err := l.Replay(ctx, func(rec Record) error {
		if rec.Event.ItemID == "1" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("Replay err = %v, want wrapped stop", err)
	}
	if n != 1 {
		t.Errorf("visited %d before the error, want 1", n)
	}
}

func TestRecentNonPositiveLimit(t *testing.T) {
	l := &Log{}
	recs, err := l.Recent(context.Background(), 0)
	if err != nil || len(recs) != 0 {
		t.Errorf("Recent(0) = %v, %v; want empty without touching the database", recs, err)
	}
}
