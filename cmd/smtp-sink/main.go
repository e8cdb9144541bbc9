// Command smtp-sink runs a throwaway SMTP server for local dispatch testing,
// plus a small HTTP stats endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/smtpsink"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := "127.0.0.1:2525"
	if a := os.Getenv("SINK_ADDR"); a != "" {
		addr = a
	}
	statsAddr := "127.0.0.1:9090"
	if a := os.Getenv("SINK_STATS_ADDR"); a != "" {
		statsAddr = a
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := smtpsink.Listen(addr, logger)
	if err != nil {
		logger.Error("failed to start sink", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"accepted": len(sink.Messages()),
			"rejected": sink.Rejected(),
		})
	})
	stats := &http.Server{Addr: statsAddr, Handler: mux}
	go func() {
		if err := stats.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("stats server error", "error", err)
		}
	}()

	logger.Info("smtp sink starting",
		"addr", sink.Addr().String(),
		"stats_addr", statsAddr,
		"rejects_recipients_prefixed", "fail",
		"rejects_password", smtpsink.RejectedPassword,
	)

	if err := sink.Serve(ctx); err != nil {
		logger.Error("sink error", "error", err)
		os.Exit(1)
	}
	stats.Close()
	logger.Info("smtp sink stopped")
}
