package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/config"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

const (
	kindMessage = "message"
	kindStatus  = "status"
)

// delivery is one synthetic webhook POST.
type delivery struct {
	kind          string
	phoneNumberID string
	wamid         string
}

type generator struct {
	target   string
	secret   string
	client   *http.Client
	wg       *sync.WaitGroup
	statuses []string
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	target := flag.String("url", fmt.Sprintf("http://localhost:%d/webhook", cfg.Server.Port), "Webhook endpoint")
	phoneIDsStr := flag.String("phone-number-ids", "", "Comma-separated phone_number_ids to target")
	secret := flag.String("secret", cfg.Webhook.AppSecret, "Signing secret; empty sends unsigned bodies")
	rate := flag.Int("rate", 50, "Deliveries per second (total)")
	duration := flag.Duration("duration", time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Concurrent senders")
	statusRatio := flag.Float64("status-ratio", 0.3, "Share of deliveries that are status reports")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Webhook Load Generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Posts signed synthetic WhatsApp webhook deliveries to the console.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	phoneIDs := splitNonEmpty(*phoneIDsStr)
	if len(phoneIDs) == 0 {
		logger.Log.Fatal("No phone number ids provided")
	}
	if *rate <= 0 {
		logger.Log.Fatal("Rate must be positive", zap.Int("rate", *rate))
	}

	observer.InitMetrics(true)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting webhook load generator",
		zap.String("url", *target),
		zap.Strings("phone_number_ids", phoneIDs),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Bool("signed", *secret != ""),
	)

	var wg sync.WaitGroup
	gen := &generator{
		target:   *target,
		secret:   *secret,
		client:   &http.Client{Timeout: 10 * time.Second},
		wg:       &wg,
		statuses: []string{"sent", "delivered", "read"},
	}
	pool, err := ants.NewPoolWithFunc(*concurrency, gen.send)
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	run(ctx, pool, &wg, phoneIDs, *rate, *duration, *statusRatio)

	logger.Log.Info("Waiting for in-flight deliveries...")
	wg.Wait()
	logger.Log.Info("Load generator shutdown complete.")
}

// run submits deliveries at rate until duration elapses or ctx is cancelled.
// Status reports reuse wamids generated earlier in the run.
func run(ctx context.Context, pool *ants.PoolWithFunc, wg *sync.WaitGroup, phoneIDs []string, rate int, duration time.Duration, statusRatio float64) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	var (
		counter int
		recent  []delivery
	)
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Load generation cancelled")
			return
		case <-timer.C:
			logger.Log.Info("Load generation duration finished", zap.Int("submitted", counter))
			return
		case <-ticker.C:
		}

		d := delivery{kind: kindMessage, phoneNumberID: phoneIDs[counter%len(phoneIDs)]}
		if len(recent) > 0 && gofakeit.Float64Range(0, 1) < statusRatio {
			prev := recent[gofakeit.Number(0, len(recent)-1)]
			d = delivery{kind: kindStatus, phoneNumberID: prev.phoneNumberID, wamid: prev.wamid}
		} else {
			d.wamid = "wamid." + gofakeit.UUID()
			if len(recent) < 1000 {
				recent = append(recent, d)
			}
		}
		counter++

		wg.Add(1)
		if err := pool.Invoke(d); err != nil {
			wg.Done()
			observer.IncLoadgenRequest(d.kind, "rejected")
			logger.Log.Warn("Worker pool rejected delivery", zap.Error(err))
		}
	}
}

func (g *generator) send(data interface{}) {
	defer g.wg.Done()
	d := data.(delivery)
	log := logger.Log.With(zap.String("kind", d.kind), zap.String("phone_number_id", d.phoneNumberID))

	body, err := g.build(d)
	if err != nil {
		observer.IncLoadgenRequest(d.kind, "build_error")
		log.Error("Failed to build payload", zap.Error(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, g.target, bytes.NewReader(body))
	if err != nil {
		observer.IncLoadgenRequest(d.kind, "build_error")
		log.Error("Failed to build request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if g.secret != "" {
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(body, g.secret))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		observer.IncLoadgenRequest(d.kind, "transport_error")
		log.Warn("Delivery failed", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observer.IncLoadgenRequest(d.kind, "http_"+fmt.Sprint(resp.StatusCode))
		log.Warn("Delivery rejected", zap.Int("status", resp.StatusCode))
		return
	}
	observer.IncLoadgenRequest(d.kind, "accepted")
}

func (g *generator) build(d delivery) ([]byte, error) {
	now := time.Now()
	if d.kind == kindStatus {
		return webhook.FakeStatus(d.phoneNumberID, d.wamid, g.statuses[gofakeit.Number(0, len(g.statuses)-1)], now)
	}
	body, _, err := webhook.FakeInboundMessage(d.phoneNumberID, d.wamid, now)
	return body, err
}

func startMetricsServer(port int) *http.Server {
	logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Prometheus metrics server failed", zap.Error(err))
		}
	}()
	return server
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
