// Command loadtest drives a running recserver with a mix of rating events
// and recommendation reads and reports throughput and latency per operation.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-write-ratio 0.2]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Users       int
	Items       int
	// WriteRatio is the share of iterations that post a rating event.
	WriteRatio float64
}

// Stats collects the outcome of one operation kind.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the recommendation server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	users := flag.Int("users", 1000, "distinct user ids")
	items := flag.Int("items", 200, "distinct item ids")
	writeRatio := flag.Float64("write-ratio", 0.2, "share of requests that post rating events")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Users:       max(*users, 1),
		Items:       max(*items, 1),
		WriteRatio:  *writeRatio,
	}

	fmt.Println("=== Recommendation Engine Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Population:  %d users, %d items\n", cfg.Users, cfg.Items)
	fmt.Printf("Write ratio: %.2f\n", cfg.WriteRatio)
	fmt.Println()

	writes, reads := runLoadTest(cfg)
	total := printReport("events", writes, cfg.Duration) + printReport("recommendations", reads, cfg.Duration)
	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) (writes, reads *Stats) {
	writes, reads = NewStats(), NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				user := fmt.Sprintf("lt-u%d", rand.IntN(cfg.Users))
				if rand.Float64() < cfg.WriteRatio {
					do(ctx, client, writes, eventRequest(ctx, cfg, user))
				} else {
					do(ctx, client, reads, mustNewRequest(ctx, http.MethodGet,
						fmt.Sprintf("%s/api/v1/users/%s/recommendations?count=10", cfg.BaseURL, user), nil))
				}
			}
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return writes, reads
}

// eventRequest builds a like or dislike for a random item, skewed toward
// low item ids so some items gather enough votes to rank.
func eventRequest(ctx context.Context, cfg Config, user string) *http.Request {
	kind := "like"
	if rand.IntN(3) == 0 {
		kind = "dislike"
	}
	item := int(math.Floor(math.Pow(rand.Float64(), 2) * float64(cfg.Items)))
	body, _ := json.Marshal(map[string]any{
		"type":    kind,
		"user_id": user,
		"item_id": fmt.Sprintf("lt-i%d", item),
	})
	req := mustNewRequest(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(ctx context.Context, client *http.Client, stats *Stats, req *http.Request) {
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(duration, 0, err)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func mustNewRequest(ctx context.Context, method, rawURL string, body io.Reader) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

// printReport prints one operation's results and returns its request count.
func printReport(name string, stats *Stats, duration time.Duration) int64 {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Printf("=== %s ===\n", name)
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Printf("Latency min/avg: %s / %s\n", latencies[0], avg)
		fmt.Printf("P50/P90/P99:     %s / %s / %s\n",
			percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99))
		fmt.Printf("Max:             %s\n", latencies[len(latencies)-1])
	}

	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()
	fmt.Println()
	return total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

