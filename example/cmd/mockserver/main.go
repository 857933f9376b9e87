// Standalone mock search API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/feedminer serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/feedminer/example/mockapi"
)

func main() {
	fmt.Println("Mock search API starting on :9999")
	fmt.Println("Credentials: analyst / s3cret")
	fmt.Println("One event is replaced every 30 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	api := mockapi.New("analyst", "s3cret", 8, 30*time.Second)

	srv := &http.Server{
		Addr:              ":9999",
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("mock server error", "error", err)
		os.Exit(1)
	}
}
