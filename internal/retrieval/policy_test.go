package retrieval

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/redis/redistest"
)

var k = keys.New("test")

func activate(m store.Store, items map[string]float64) {
	for item, hot := range items {
		m.ZAdd(context.Background(), k.ActiveItemsZSet(), store.Z{Member: item, Score: hot})
	}
}

func newPolicy(m store.Store) *Policy {
	return NewPolicy(m, k, 30*time.Second, nil)
}

func TestRecommendFromActiveWhenNoRecommendations(t *testing.T) {
	ctx := context.Background()
	m, srv := redistest.NewStore(t)
	activate(m, map[string]float64{"a": 500, "b": 400, "c": 300, "d": 200, "e": 100})
	m.SAdd(ctx, k.UserLikedSet("u"), "a")
	m.SAdd(ctx, k.UserPassedSet("u"), "c")

	items, branch, err := newPolicy(m).Retrieve(ctx, "u", 3)
	if err != nil {
		t.Fatal(err)
	}
	if branch != BranchActive {
		t.Errorf("branch = %s, want %s", branch, BranchActive)
	}
	if want := []string{"b", "d", "e"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if ttl := srv.TTL(k.UserFilteredActiveZSet("u")); ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("scratch set TTL = %v, want (0, 30s]", ttl)
	}
}

func TestViewDebtIsOneShot(t *testing.T) {
	ctx := context.Background()
	m, _ := redistest.NewStore(t)
	activate(m, map[string]float64{"a": 500, "b": 400, "c": 300, "d": 200, "e": 100})
	m.SAdd(ctx, k.ViewDebtSet(), "u", "other")
	p := newPolicy(m)

	items, branch, err := p.Retrieve(ctx, "u", 10)
	if err != nil {
		t.Fatal(err)
	}
	if branch != BranchViewDebt {
		t.Fatalf("first call branch = %s, want %s", branch, BranchViewDebt)
	}
	// five filtered items, the hottest three are skipped
	if want := []string{"d", "e"}; !reflect.DeepEqual(items, want) {
		t.Errorf("view debt items = %v, want %v", items, want)
	}
	if ok, _ := m.SIsMember(ctx, k.ViewDebtSet(), "u"); ok {
		t.Error("view debt flag was not consumed")
	}
	if ok, _ := m.SIsMember(ctx, k.ViewDebtSet(), "other"); !ok {
		t.Error("another user's flag was consumed")
	}

	items, branch, _ = p.Retrieve(ctx, "u", 10)
	if branch != BranchActive {
		t.Errorf("second call branch = %s, want %s", branch, BranchActive)
	}
	if len(items) != 5 {
		t.Errorf("second call items = %v, want all five", items)
	}
}

func TestViewDebtFiltersRatedItems(t *testing.T) {
	ctx := context.Background()
	m, _ := redistest.NewStore(t)
	activate(m, map[string]float64{"a": 500, "b": 400, "c": 300, "d": 200})
	m.SAdd(ctx, k.UserDislikedSet("u"), "d")
	m.SAdd(ctx, k.ViewDebtSet(), "u")

	items, _, _ := newPolicy(m).Retrieve(ctx, "u", 10)
	// three remain, ceil(3/2) = 2 skipped
	if want := []string{"c"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestIntersectionRanksByPrediction(t *testing.T) {
	ctx := context.Background()
	m, _ := redistest.NewStore(t)
	activate(m, map[string]float64{"a": 500, "b": 400, "c": 300})
	m.ZAdd(ctx, k.RecommendedZSet("u"),
		store.Z{Member: "a", Score: 0.1},
		store.Z{Member: "c", Score: 0.9},
		store.Z{Member: "gone", Score: 1},
	)

	items, branch, err := newPolicy(m).Retrieve(ctx, "u", 5)
	if err != nil {
		t.Fatal(err)
	}
	if branch != BranchIntersection {
		t.Errorf("branch = %s, want %s", branch, BranchIntersection)
	}
	if want := []string{"c", "a"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestEmptyIntersectionFallsBackToFilteredActive(t *testing.T) {
	ctx := context.Background()
	m, _ := redistest.NewStore(t)
	activate(m, map[string]float64{"a": 500, "b": 400})
	m.SAdd(ctx, k.UserLikedSet("u"), "a")
	m.ZAdd(ctx, k.RecommendedZSet("u"), store.Z{Member: "inactive", Score: 0.8})

	items, branch, _ := newPolicy(m).Retrieve(ctx, "u", 5)
	if branch != BranchActive {
		t.Errorf("branch = %s, want %s", branch, BranchActive)
	}
	if want := []string{"b"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestRecommendedOnly(t *testing.T) {
	ctx := context.Background()
	m, _ := redistest.NewStore(t)
	m.ZAdd(ctx, k.RecommendedZSet("u"),
		store.Z{Member: "x", Score: 0.2},
		store.Z{Member: "y", Score: 0.6},
		store.Z{Member: "z", Score: 0.4},
	)
	items, branch, _ := newPolicy(m).Retrieve(ctx, "u", 2)
	if branch != BranchRecommended {
		t.Errorf("branch = %s, want %s", branch, BranchRecommended)
	}
	if want := []string{"y", "z"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestEmptyStoreReturnsEmptyList(t *testing.T) {
	m, _ := redistest.NewStore(t)
	p := newPolicy(m)
	got := p.Recommend(context.Background(), "u", 5)
	if got == nil || len(got) != 0 {
		t.Errorf("Recommend = %#v, want empty non-nil list", got)
	}
	if got := p.Recommend(context.Background(), "u", 0); len(got) != 0 {
		t.Errorf("Recommend(n=0) = %v", got)
	}
}

// brokenStore fails the first command the policy issues.
type brokenStore struct {
	store.Store
}

func (brokenStore) SRem(context.Context, string, ...string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRecommendSwallowsStoreFailure(t *testing.T) {
	p := NewPolicy(brokenStore{}, k, time.Second, nil)
	if _, _, err := p.Retrieve(context.Background(), "u", 3); err == nil {
		t.Fatal("Retrieve should surface the store failure")
	}
	got := p.Recommend(context.Background(), "u", 3)
	if got == nil || len(got) != 0 {
		t.Errorf("Recommend = %#v, want empty list", got)
	}
}
