// main.go - Load testing tool for the Metalise visit tracker
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"metalise/internal/analytics"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	AnalyticsKey string // when set, rollup counters are checked before and after the run
	Concurrency  int
	Duration     time.Duration
	VisitsPerSec int
	Visitors     int
	Timeout      time.Duration
}

// PerfStats holds statistics about the performance test
type PerfStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	DegradedResponses  int64
	TotalDuration      time.Duration
	StartTime          time.Time
	EndTime            time.Time

	mu            sync.Mutex
	StatusCodes   map[int]int64
	ResponseTimes []time.Duration
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Degraded   bool
	Error      error
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "Base URL of the server")
	key := flag.String("key", os.Getenv("ANALYTICS_KEY"), "Analytics key used to verify the daily counters")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	visitsPerSec := flag.Int("rate", 0, "Target visits per second (0 = unlimited)")
	visitors := flag.Int("visitors", 200, "Number of distinct simulated visitor addresses")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := &PerfConfig{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		AnalyticsKey: *key,
		Concurrency:  max(*concurrency, 1),
		Duration:     *duration,
		VisitsPerSec: *visitsPerSec,
		Visitors:     max(*visitors, 1),
		Timeout:      *timeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== Metalise Load Testing Tool ===")
	fmt.Printf("  URL (-url):           %s\n", config.BaseURL)
	fmt.Printf("  Concurrency (-c):     %d\n", config.Concurrency)
	fmt.Printf("  Duration (-d):        %v\n", config.Duration)
	fmt.Printf("  Visits/sec (-rate):   %d (0 = unlimited)\n", config.VisitsPerSec)
	fmt.Printf("  Visitors (-visitors): %d\n", config.Visitors)
	fmt.Printf("  Verify counters:      %v\n", config.AnalyticsKey != "")
	fmt.Println("==================================")

	client := &http.Client{Timeout: config.Timeout}

	var before *analytics.DaySnapshot
	if config.AnalyticsKey != "" {
		snapshot, err := fetchToday(ctx, client, config)
		if err != nil {
			logger.Error("Failed to read analytics before the run", slog.Any("error", err))
			os.Exit(1)
		}
		before = snapshot
	}

	stats := &PerfStats{
		StatusCodes: make(map[int]int64),
		StartTime:   time.Now(),
	}

	testCtx, testCancel := context.WithTimeout(ctx, config.Duration)
	defer testCancel()

	for result := range runTest(testCtx, client, config, logger) {
		processResult(result, stats)
	}

	stats.EndTime = time.Now()
	stats.TotalDuration = stats.EndTime.Sub(stats.StartTime)
	printResults(stats)

	if before != nil {
		after, err := fetchToday(ctx, client, config)
		if err != nil {
			logger.Error("Failed to read analytics after the run", slog.Any("error", err))
			os.Exit(1)
		}
		if !verifyCounters(*before, *after, stats) {
			os.Exit(1)
		}
	}

	fmt.Println("Test completed successfully!")
}

// runTest starts the workers and returns a channel for results
func runTest(ctx context.Context, client *http.Client, config *PerfConfig, logger *slog.Logger) <-chan Result {
	resultChan := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	requestsPerSecPerWorker := 0.0
	if config.VisitsPerSec > 0 {
		requestsPerSecPerWorker = float64(config.VisitsPerSec) / float64(config.Concurrency)
		logger.Info("Rate limiting enabled",
			slog.Int("totalRequestsPerSec", config.VisitsPerSec),
			slog.Float64("requestsPerSecPerWorker", requestsPerSecPerWorker))
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			randGen := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			var ticker *time.Ticker
			if requestsPerSecPerWorker > 0 {
				ticker = time.NewTicker(time.Duration(float64(time.Second) / requestsPerSecPerWorker))
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				result := sendVisit(ctx, client, config, randGen)
				if ctx.Err() != nil && result.Error != nil {
					// Requests cut off by the end of the run are not failures.
					return
				}
				resultChan <- result
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	return resultChan
}

// sendVisit calls the health endpoint, which records one visit per request
func sendVisit(ctx context.Context, client *http.Client, config *PerfConfig, randGen *rand.Rand) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/api/health", nil)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}

	visitor := randGen.Intn(config.Visitors)
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.%d.%d.%d", (visitor>>16)&0xff, (visitor>>8)&0xff, visitor&0xff))
	req.Header.Set("User-Agent", generateUserAgent(randGen))

	startTime := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return Result{Duration: duration, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Printf("Error response [%d]: %s\n", resp.StatusCode, string(body))
	} else {
		_ = json.Unmarshal(body, &health)
	}

	return Result{
		Duration:   duration,
		StatusCode: resp.StatusCode,
		Degraded:   health.Status == "degraded",
	}
}

// fetchToday reads today's rollup through the analytics endpoint
func fetchToday(ctx context.Context, client *http.Client, config *PerfConfig) (*analytics.DaySnapshot, error) {
	endpoint := config.BaseURL + "/api/analytics?key=" + url.QueryEscape(config.AnalyticsKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analytics returned status %d", resp.StatusCode)
	}

	var summary analytics.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode analytics: %w", err)
	}
	return &summary.Today, nil
}

// verifyCounters checks that every successful request was counted exactly once.
// Runs that cross midnight UTC cannot be verified.
func verifyCounters(before, after analytics.DaySnapshot, stats *PerfStats) bool {
	counted := after.TotalVisits - before.TotalVisits
	fmt.Println("\nCounter Verification:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Successful requests\t%d\n", stats.SuccessfulRequests)
	fmt.Fprintf(w, "Visits counted\t%d\n", counted)
	fmt.Fprintf(w, "Unique visitors today\t%d\n", after.UniqueVisitors)
	w.Flush()

	ok := counted >= stats.SuccessfulRequests-stats.DegradedResponses && after.UniqueVisitors <= after.TotalVisits
	if !ok {
		fmt.Println("MISMATCH: daily counters do not match the requests sent")
	}
	return ok
}

// generateUserAgent returns a random user agent string
func generateUserAgent(randGen *rand.Rand) string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	}
	return userAgents[randGen.Intn(len(userAgents))]
}

// processResult processes the results of a single request
func processResult(result Result, stats *PerfStats) {
	atomic.AddInt64(&stats.TotalRequests, 1)

	if result.Error != nil {
		atomic.AddInt64(&stats.FailedRequests, 1)
		return
	}

	stats.mu.Lock()
	stats.ResponseTimes = append(stats.ResponseTimes, result.Duration)
	stats.StatusCodes[result.StatusCode]++
	stats.mu.Unlock()

	if result.StatusCode == http.StatusOK {
		atomic.AddInt64(&stats.SuccessfulRequests, 1)
		if result.Degraded {
			atomic.AddInt64(&stats.DegradedResponses, 1)
		}
	} else {
		atomic.AddInt64(&stats.FailedRequests, 1)
	}
}

// percentile returns the p-th percentile of sorted durations
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// printResults displays the test results in a formatted table
func printResults(stats *PerfStats) {
	fmt.Println("\nPerformance Test Results:")
	fmt.Printf("Test Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))

	requestsPerSecond := 0.0
	if stats.TotalDuration > 0 {
		requestsPerSecond = float64(stats.TotalRequests) / stats.TotalDuration.Seconds()
	}

	sorted := append([]time.Duration(nil), stats.ResponseTimes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	total := max(stats.TotalRequests, 1)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Requests Per Second\t%.2f\n", requestsPerSecond)
	fmt.Fprintf(w, "Successful Requests\t%d (%.2f%%)\n", stats.SuccessfulRequests, 100*float64(stats.SuccessfulRequests)/float64(total))
	fmt.Fprintf(w, "Failed Requests\t%d (%.2f%%)\n", stats.FailedRequests, 100*float64(stats.FailedRequests)/float64(total))
	if stats.DegradedResponses > 0 {
		fmt.Fprintf(w, "Degraded Responses\t%d\n", stats.DegradedResponses)
	}
	if len(sorted) > 0 {
		fmt.Fprintf(w, "Min Latency\t%v\n", sorted[0])
		fmt.Fprintf(w, "P50 Latency\t%v\n", percentile(sorted, 0.50))
		fmt.Fprintf(w, "P95 Latency\t%v\n", percentile(sorted, 0.95))
		fmt.Fprintf(w, "P99 Latency\t%v\n", percentile(sorted, 0.99))
		fmt.Fprintf(w, "Max Latency\t%v\n", sorted[len(sorted)-1])
	}
	w.Flush()

	if len(stats.StatusCodes) == 0 {
		return
	}

	fmt.Println("\nStatus Code Distribution:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "STATUS CODE", "COUNT", "PERCENTAGE", "GRAPH")

	var codes []int
	var maxCount int64 = 1
	for code, count := range stats.StatusCodes {
		codes = append(codes, code)
		maxCount = max(maxCount, count)
	}
	sort.Ints(codes)

	const maxBarLength = 50
	for _, code := range codes {
		count := stats.StatusCodes[code]
		bar := strings.Repeat("█", int(float64(count)/float64(maxCount)*maxBarLength))
		fmt.Fprintf(w, "%d\t%d\t%.2f%%\t%s\n", code, count, 100*float64(count)/float64(total), bar)
	}
	w.Flush()
}
