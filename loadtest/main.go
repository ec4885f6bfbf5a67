package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Configuration
var (
	targetURL = flag.String("url", "http://localhost:8080", "Server base URL")
	flagKey   = flag.String("feature", "query-caching", "Flag key to evaluate")
	totalVUs  = flag.Int("c", 200, "Total Virtual Users (Concurrency)")
	duration  = flag.Duration("d", 60*time.Second, "Test duration")
	rampUp    = flag.Duration("ramp", 10*time.Second, "Ramp up duration")
	userPool  = flag.Int("users", 100000, "Size of the synthetic user id pool")
)

// Metrics
var (
	activeClients int64
	totalRequests int64
	requestErrors int64
	enabledCount  int64
	latencySum    int64 // microseconds
	latencyCount  int64
)

type evaluation struct {
	Key     string `json:"key"`
	UserID  string `json:"user_id"`
	Enabled bool   `json:"enabled"`
}

func main() {
	flag.Parse()

	fmt.Printf("Starting evaluation load test\n")
	fmt.Printf("   Target:  %s\n", *targetURL)
	fmt.Printf("   Flag:    %s\n", *flagKey)
	fmt.Printf("   VUs:     %d\n", *totalVUs)
	fmt.Printf("   Duration: %v\n", *duration)

	http.DefaultTransport.(*http.Transport).MaxIdleConns = *totalVUs
	http.DefaultTransport.(*http.Transport).MaxConnsPerHost = *totalVUs

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// Metric Reporter
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				active := atomic.LoadInt64(&activeClients)
				total := atomic.LoadInt64(&totalRequests)
				errs := atomic.LoadInt64(&requestErrors)
				latSum := atomic.SwapInt64(&latencySum, 0)
				latCnt := atomic.SwapInt64(&latencyCount, 0)

				avgLat := float64(0)
				if latCnt > 0 {
					avgLat = float64(latSum) / float64(latCnt) / 1000.0
				}

				fmt.Printf("[%s] Active: %d | Total: %d | Errors: %d | Req/s: %d | Avg Latency: %.2f ms\n",
					time.Now().Format("15:04:05"), active, total, errs, latCnt, avgLat)
			}
		}
	}()

	var wg sync.WaitGroup
	interval := *rampUp / time.Duration(*totalVUs)
	for i := 0; i < *totalVUs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runClient(ctx)
		}()
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}

	wg.Wait()

	total := atomic.LoadInt64(&totalRequests)
	enabled := atomic.LoadInt64(&enabledCount)
	if total > 0 {
		fmt.Printf("Done. %d requests, %.2f%% evaluated enabled.\n",
			total, float64(enabled)/float64(total)*100)
	}
}

func runClient(ctx context.Context) {
	client := &http.Client{Timeout: 5 * time.Second}

	atomic.AddInt64(&activeClients, 1)
	defer atomic.AddInt64(&activeClients, -1)

	for ctx.Err() == nil {
		userID := fmt.Sprintf("user-%d", rand.Intn(*userPool))
		url := fmt.Sprintf("%s/v1/flags/%s/evaluate?user_id=%s", *targetURL, *flagKey, userID)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&requestErrors, 1)
			}
			continue
		}

		atomic.AddInt64(&totalRequests, 1)

		if resp.StatusCode != http.StatusOK {
			atomic.AddInt64(&requestErrors, 1)
			resp.Body.Close()
			continue
		}

		var eval evaluation
		if err := json.NewDecoder(resp.Body).Decode(&eval); err == nil {
			if eval.Enabled {
				atomic.AddInt64(&enabledCount, 1)
			}
			atomic.AddInt64(&latencySum, time.Since(start).Microseconds())
			atomic.AddInt64(&latencyCount, 1)
		}
		resp.Body.Close()
	}
}
