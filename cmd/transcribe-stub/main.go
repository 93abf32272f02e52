package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	address := flag.String("address", "127.0.0.1", "Listen address")
	port := flag.Int("port", 5000, "Listen port")
	field := flag.String("field", "audio", "Multipart field carrying the recording")
	text := flag.String("text", "This is a test transcription", "Transcript returned for non-silent audio")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mux := http.NewServeMux()
	mux.Handle("/transcribe", &transcribeHandler{
		field:  *field,
		text:   *text,
		delay:  *delay,
		logger: logger,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", *address, *port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Test transcription server starting",
		slog.String("endpoint", fmt.Sprintf("http://%s/transcribe", srv.Addr)),
		slog.String("field", *field),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Test transcription server stopped")
}
