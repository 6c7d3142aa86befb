// Benchmark tool for load testing the explorer read endpoints.
//
// Usage:
//
//	go run cmd/benchmark/main.go -url http://localhost:8000 -requests 2000
//
// This tool:
//  1. Discovers group ids through GET /api/groups
//  2. Replays a mix of list, network and detail requests from concurrent workers
//  3. Optionally replays a CSV of extra request paths (one path per row)
//  4. Reports per-endpoint latency percentiles, errors and throughput
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Target is one request the workers replay.
type Target struct {
	Endpoint string // label used in the report
	Path     string
}

// GroupListResponse is the subset of GET /api/groups the tool reads.
type GroupListResponse struct {
	Items []struct {
		GroupID string `json:"group_id"`
	} `json:"items"`
	Total int `json:"total"`
}

// Metrics tracks benchmark results
type Metrics struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	errors    map[string]int64

	TotalProcessed int64
	TotalErrors    int64
}

func (m *Metrics) record(endpoint string, elapsed time.Duration, err error) {
	atomic.AddInt64(&m.TotalProcessed, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		atomic.AddInt64(&m.TotalErrors, 1)
		m.errors[endpoint]++
		return
	}
	m.latencies[endpoint] = append(m.latencies[endpoint], elapsed)
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8000", "Explorer base URL")
	requests := flag.Int("requests", 1000, "Total requests to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	minRisk := flag.Int("min-risk", 0, "min_risk filter for list and network requests")
	pathsCSV := flag.String("csv", "", "Optional CSV of extra request paths to mix in")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("EXPLORER BENCHMARK")
	fmt.Printf("\nExplorer URL: %s\n", *baseURL)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Requests:     %d\n", *requests)
	fmt.Printf("Min risk:     %d\n", *minRisk)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: explorer not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the explorer is running:")
		fmt.Println("  go run cmd/explorer/main.go")
		os.Exit(1)
	}
	fmt.Println("Explorer is healthy")

	client := &http.Client{Timeout: 30 * time.Second}
	groupIDs, err := discoverGroups(client, *baseURL)
	if err != nil {
		fmt.Printf("ERROR: failed to list groups: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Discovered %d groups\n", len(groupIDs))

	targets := buildTargets(groupIDs, *minRisk)
	if *pathsCSV != "" {
		extra, err := readPathsCSV(*pathsCSV)
		if err != nil {
			fmt.Printf("ERROR: failed to read CSV: %v\n", err)
			os.Exit(1)
		}
		targets = append(targets, extra...)
		fmt.Printf("Loaded %d extra paths\n", len(extra))
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(targets, *baseURL, *requests, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func discoverGroups(client *http.Client, baseURL string) ([]string, error) {
	resp, err := client.Get(baseURL + "/api/groups")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var list GroupListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		ids = append(ids, item.GroupID)
	}
	return ids, nil
}

// buildTargets mixes one list and one network request with a detail
// request per discovered group.
func buildTargets(groupIDs []string, minRisk int) []Target {
	filter := fmt.Sprintf("?min_risk=%d", minRisk)
	targets := []Target{
		{Endpoint: "groups", Path: "/api/groups" + filter},
		{Endpoint: "network", Path: "/api/network" + filter},
	}
	for _, id := range groupIDs {
		targets = append(targets, Target{Endpoint: "detail", Path: "/api/groups/" + url.PathEscape(id)})
	}
	return targets
}

func readPathsCSV(path string) ([]Target, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var targets []Target
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		if len(record) == 0 {
			continue
		}
		p := strings.TrimSpace(record[0])
		if !strings.HasPrefix(p, "/") {
			continue
		}
		label := "custom"
		if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
			label = strings.TrimSpace(record[1])
		}
		targets = append(targets, Target{Endpoint: label, Path: p})
	}
	return targets, nil
}

func runBenchmark(targets []Target, baseURL string, requests, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{
		latencies: make(map[string][]time.Duration),
		errors:    make(map[string]int64),
	}

	work := make(chan Target, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for target := range work {
				start := time.Now()
				err := fetch(client, baseURL+target.Path)
				elapsed := time.Since(start)
				metrics.record(target.Endpoint, elapsed, err)

				if verbose {
					status := "ok"
					if err != nil {
						status = err.Error()
					}
					fmt.Printf("%-8s %-60s %8.2fms %s\n", target.Endpoint, target.Path,
						float64(elapsed.Microseconds())/1000, status)
				}
			}
		}()
	}

	for i := 0; i < requests; i++ {
		work <- targets[i%len(targets)]
	}
	close(work)

	wg.Wait()

	return metrics
}

func fetch(client *http.Client, target string) error {
	resp, err := client.Get(target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nTotal Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("Errors:           %d\n", m.TotalErrors)

	endpoints := make([]string, 0, len(m.latencies))
	for endpoint := range m.latencies {
		endpoints = append(endpoints, endpoint)
	}
	for endpoint := range m.errors {
		if _, ok := m.latencies[endpoint]; !ok {
			endpoints = append(endpoints, endpoint)
		}
	}
	sort.Strings(endpoints)

	fmt.Printf("\n%-10s %8s %8s %10s %10s %10s %10s\n", "ENDPOINT", "OK", "ERRORS", "P50", "P90", "P99", "MAX")
	for _, endpoint := range endpoints {
		lat := m.latencies[endpoint]
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		var slowest time.Duration
		if len(lat) > 0 {
			slowest = lat[len(lat)-1]
		}
		fmt.Printf("%-10s %8d %8d %10s %10s %10s %10s\n",
			endpoint,
			len(lat),
			m.errors[endpoint],
			percentile(lat, 0.50).Round(time.Microsecond),
			percentile(lat, 0.90).Round(time.Microsecond),
			percentile(lat, 0.99).Round(time.Microsecond),
			slowest.Round(time.Microsecond),
		)
	}

	fmt.Printf("\nTotal Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
