package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/redis/redistest"
)

// seedPopulation gives every user a deterministic spread of likes and
// dislikes over items, without running recomputes.
func seedPopulation(b *testing.B, users, items int) *Engine {
	b.Helper()
	cfg := config.DefaultEngine()
	cfg.UpdateRecs = false
	s, _ := redistest.NewStore(b)
	e, err := New(s, cfg, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	for u := 0; u < users; u++ {
		user := fmt.Sprintf("u%d", u)
		for i := u % 3; i < items; i += 3 {
			item := fmt.Sprintf("i%d", i)
			if (u+i)%4 == 0 {
				err = e.RecordDislike(ctx, user, item)
			} else {
				err = e.RecordLike(ctx, user, item)
			}
			if err != nil {
				b.Fatal(err)
			}
		}
	}
	return e
}

// BenchmarkUpdateSequence measures one user's similarity row rebuild plus
// recommendation refresh for growing populations.
func BenchmarkUpdateSequence(b *testing.B) {
	for _, users := range []int{10, 100, 500} {
		b.Run(fmt.Sprintf("users_%d", users), func(b *testing.B) {
			e := seedPopulation(b, users, 60)
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := e.UpdateSequence(ctx, "u0"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRecommend measures retrieval once recommendations exist.
func BenchmarkRecommend(b *testing.B) {
	e := seedPopulation(b, 100, 60)
	ctx := context.Background()
	if err := e.UpdateSequence(ctx, "u0"); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Recommend(ctx, "u0", 10)
	}
}
