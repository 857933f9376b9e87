package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/feedminer"
	"github.com/jpalmerr/feedminer/example/mockapi"
)

func main() {
	// start the mock search API
	api := mockapi.New("analyst", "s3cret", 8, 20*time.Second)
	go func() {
		srv := &http.Server{Addr: ":9999", Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("mock server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	logins, err := feedminer.NewNode("mock-logins", "http://localhost:9999/query",
		feedminer.WithQueryString(`{"queryString": "#type=login | groupBy(src_ip)"}`),
		feedminer.WithExtractor("events"),
		feedminer.WithIndicator("src_ip"),
		feedminer.WithPrefix("logins"),
		feedminer.WithCredentials("analyst", "s3cret"),
	)
	if err != nil {
		slog.Error("failed to create node", "error", err)
		os.Exit(1)
	}

	// flat responses pass through the default extractor
	flat, err := feedminer.NewNode("mock-flat", "http://localhost:9999/flat",
		feedminer.WithIndicator("src_ip"),
		feedminer.WithFields("country"),
		feedminer.WithCredentials("analyst", "s3cret"),
		feedminer.WithInterval(15*time.Second),
	)
	if err != nil {
		slog.Error("failed to create node", "error", err)
		os.Exit(1)
	}

	m, err := feedminer.New(
		feedminer.WithNodes(logins, flat),
		feedminer.WithPollInterval(5*time.Second),
		feedminer.WithPort(8080),
		feedminer.WithConfigDir(os.TempDir()),
		feedminer.WithMetrics(true),
		feedminer.WithRecordCallback(func(r feedminer.PollResult) {
			if r.Error != nil || r.Added+r.Withdrawn == 0 {
				return
			}
			fmt.Printf("%s: +%d -%d (%d records)\n", r.NodeName, r.Added, r.Withdrawn, len(r.Records))
		}),
	)
	if err != nil {
		slog.Error("failed to create miner", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  feedminer demo")
	fmt.Println()
	fmt.Println("  Records:  http://localhost:8080/api/records")
	fmt.Println("  Changes:  http://localhost:8080/api/sse")
	fmt.Println("  Metrics:  http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		slog.Error("feedminer error", "error", err)
		os.Exit(1)
	}
}
