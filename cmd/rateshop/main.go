package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vietddude/stylelog"

	"github.com/egorkaBurkenya/rateshop"
	"github.com/egorkaBurkenya/rateshop/carriererr"
	"github.com/egorkaBurkenya/rateshop/config"
	"github.com/egorkaBurkenya/rateshop/rating"
)

var usage = heredoc.Doc(`
	Usage: rateshop [flags] [request.json]

	Reads a rate request as JSON from the given file (or stdin when the file
	is omitted or "-") and prints UPS quotes, cheapest first.

	Credentials come from the config file, a .env file in the working
	directory, or the environment:
	  UPS_CLIENT_ID, UPS_CLIENT_SECRET, UPS_ACCOUNT_NUMBER
	  UPS_BASE_URL, UPS_TOKEN_URL, UPS_API_VERSION
	  HTTP_TIMEOUT, MAX_RETRIES, RETRY_DELAY_MS

	Example request:
	  {
	    "origin":      {"postalCode": "30301", "countryCode": "US"},
	    "destination": {"postalCode": "90210", "countryCode": "US", "residential": true},
	    "packages":    [{"weight": 5, "weightUnit": "LBS"}]
	  }

	Flags:
`)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	asJSON := flag.Bool("json", false, "Print quotes as JSON")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline for the rate request")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Invalid logging level", "error", err)
		os.Exit(1)
	}
	if *isDebug {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})

	req, err := readRequest(flag.Arg(0))
	if err != nil {
		slog.Error("Failed to read rate request", "error", err)
		os.Exit(2)
	}

	svc, err := rateshop.New(*cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	addr := cfg.Metrics.Addr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		go serveMetrics(addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	quotes, err := svc.GetRates(ctx, req)
	if err != nil {
		logFailure(err)
		os.Exit(1)
	}

	if *asJSON {
		err = printJSON(os.Stdout, quotes)
	} else {
		err = printTable(os.Stdout, quotes)
	}
	if err != nil {
		slog.Error("Failed to write output", "error", err)
		os.Exit(1)
	}

	tokenStats, rateStats := svc.Stats()
	slog.Debug("Done", "token", tokenStats.String(), "rates", rateStats.String())
}

func readRequest(path string) (rating.RateRequest, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return rating.RateRequest{}, err
		}
		defer f.Close()
		r = f
	}
	var req rating.RateRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return rating.RateRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server failed", "error", err)
	}
}

func logFailure(err error) {
	ce, ok := carriererr.As(err)
	if !ok {
		slog.Error("Rate request failed", "error", err)
		return
	}
	attrs := []any{"code", ce.Code(), "error", err}
	if ce.StatusCode != 0 {
		attrs = append(attrs, "status", ce.StatusCode)
	}
	if ce.RetryAfterSeconds > 0 {
		attrs = append(attrs, "retry_after", time.Duration(ce.RetryAfterSeconds)*time.Second)
	}
	for field, msgs := range ce.ValidationErrors {
		attrs = append(attrs, slog.Any(field, msgs))
	}
	slog.Error("Rate request failed", attrs...)
}

func printJSON(w io.Writer, quotes []rating.Quote) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(quotes)
}

func printTable(w io.Writer, quotes []rating.Quote) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tCODE\tPRICE\tLIST\tDAYS\tGUARANTEED")
	for _, q := range quotes {
		best := q.BestPrice()
		days := "-"
		if q.TransitDays > 0 {
			days = fmt.Sprint(q.TransitDays)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f %s\t%.2f\t%s\t%t\n",
			q.ServiceName, q.ServiceCode, best.Amount, best.Currency, q.Total.Amount, days, q.Guaranteed)
	}
	return tw.Flush()
}
