package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type probeResult struct {
	status  int
	latency time.Duration
	err     error
}

type probeSummary struct {
	byStatus map[int]int
	errors   int
	p50      time.Duration
	p95      time.Duration
	max      time.Duration
}

func summarize(results []probeResult) probeSummary {
	s := probeSummary{byStatus: map[int]int{}}
	latencies := make([]time.Duration, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			s.errors++
			continue
		}
		s.byStatus[r.status]++
		latencies = append(latencies, r.latency)
	}
	if len(latencies) == 0 {
		return s
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.p50 = latencies[(len(latencies)-1)*50/100]
	s.p95 = latencies[(len(latencies)-1)*95/100]
	s.max = latencies[len(latencies)-1]
	return s
}

func probeCmd(opts *options, ui *ui) *cobra.Command {
	var (
		method      string
		requests    int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "probe <function>",
		Short: "Send a burst of requests and summarize the responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requests <= 0 {
				requests = 1
			}
			if concurrency <= 0 {
				concurrency = 1
			}
			if concurrency > requests {
				concurrency = requests
			}
			token, err := resolveToken(nil, opts.token)
			if err != nil {
				return err
			}
			c := newClient(opts.baseURL, opts.timeout)
			method = strings.ToUpper(method)

			bar := progressbar.NewOptions(requests,
				progressbar.OptionSetDescription("Probing "+args[0]),
				progressbar.OptionSetWidth(24),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			results := make([]probeResult, requests)
			jobs := make(chan int)
			var wg sync.WaitGroup
			for w := 0; w < concurrency; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range jobs {
						start := time.Now()
						status, _, err := c.call(method, args[0], token, nil)
						results[i] = probeResult{status: status, latency: time.Since(start), err: err}
						_ = bar.Add(1)
					}
				}()
			}
			for i := 0; i < requests; i++ {
				jobs <- i
			}
			close(jobs)
			wg.Wait()
			_ = bar.Finish()

			s := summarize(results)
			codes := make([]int, 0, len(s.byStatus))
			for code := range s.byStatus {
				codes = append(codes, code)
			}
			sort.Ints(codes)
			fmt.Printf("%s %d request(s) to %s\n", ui.info("[INFO]"), requests, args[0])
			for _, code := range codes {
				fmt.Printf("  %-28s %d\n", ui.status(code), s.byStatus[code])
			}
			if s.errors > 0 {
				fmt.Printf("  %-28s %d\n", ui.err("transport errors"), s.errors)
			}
			fmt.Printf("  %s p50=%s p95=%s max=%s\n", ui.dim("latency"), s.p50.Round(time.Millisecond), s.p95.Round(time.Millisecond), s.max.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().IntVarP(&requests, "requests", "n", 50, "Number of requests")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Concurrent requests")
	return cmd
}
