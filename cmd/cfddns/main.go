package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Travis-Britz/cfddns"
	log "github.com/sirupsen/logrus"
)

var flags = struct {
	ConfigFile string
	EnvFile    string
	KeyFile    string
	IP         string
	Interval   time.Duration
	Verbose    bool
}{}

func init() {
	flag.StringVar(&flags.ConfigFile, "c", "", "Path to a YAML config file")
	flag.StringVar(&flags.EnvFile, "env-file", "", "Path to a .env file (default: .env if present)")
	flag.StringVar(&flags.KeyFile, "k", "", "Path to cloudflare API credentials file (overrides key_file)")
	flag.StringVar(&flags.IP, "ip", "", "IP address to set instead of asking the IP service")
	flag.DurationVar(&flags.Interval, "i", 0, "Duration to wait between IP checks; 0 runs once")
	flag.BoolVar(&flags.Verbose, "v", false, "Enable verbose logging")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig(flags.ConfigFile, flags.EnvFile)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	applyFlags(&cfg)

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer closeLog()

	if err := cfg.validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	token, err := resolveToken(cfg, logger)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	metrics := cfddns.NewMetrics()
	options, err := clientOptions(cfg, token, logger, metrics)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	client, err := cfddns.New(cfg.Zones, options...)
	if err != nil {
		return fmt.Errorf("error creating cfddns.Client: %w", err)
	}
	var ddnsClient cfddns.DDNSClient = client
	if cfg.MetricsFile != "" {
		ddnsClient = &textfileWriter{DDNSClient: client, metrics: metrics, path: cfg.MetricsFile, logger: logger}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ddnsClient.RunDDNS(ctx); err != nil && cfg.Interval <= 0 {
		return fmt.Errorf("run: %w", err)
	} else if err != nil {
		logger.Error(err)
	}
	if cfg.Interval <= 0 {
		return nil
	}

	logger.Infof("checking the public IP every %s", cfg.Interval)
	cfddns.RunDaemon(ddnsClient, ctx, cfg.Interval, logger)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func applyFlags(cfg *Config) {
	if flags.KeyFile != "" {
		cfg.KeyFile = flags.KeyFile
	}
	if flags.Interval > 0 {
		cfg.Interval = flags.Interval
	}
	if flags.Verbose {
		cfg.Verbose = true
	}
}

func clientOptions(cfg Config, token string, logger log.FieldLogger, metrics *cfddns.Metrics) ([]cfddns.Option, error) {
	options := []cfddns.Option{
		cfddns.UsingCloudflare(token),
		cfddns.UsingIPFile(cfg.IPFile),
		cfddns.WithMetrics(metrics),
		cfddns.WithLogger(logger),
	}

	if flags.IP != "" {
		r, err := cfddns.FromString(flags.IP)
		if err != nil {
			return nil, err
		}
		options = append(options, cfddns.UsingResolver(r))
	} else {
		options = append(options, cfddns.UsingWebResolver(cfg.IPService))
	}

	if cfg.Notifications {
		n, err := newNotifier(cfg)
		if err != nil {
			return nil, err
		}
		options = append(options, cfddns.UsingNotifier(n))
	} else {
		logger.Info("notifications are disabled")
	}

	if cfg.ServiceCheck || cfg.UpdateCheck {
		probe := cfddns.NewShellProbe(cfg.Service)
		if cfg.ServiceCheck {
			options = append(options, cfddns.WithServiceCheck(probe))
		}
		if cfg.UpdateCheck {
			options = append(options, cfddns.WithUpdateCheck(probe))
		}
	}
	return options, nil
}

func newNotifier(cfg Config) (cfddns.Notifier, error) {
	if cfg.NotifyCommand != "" {
		parts := strings.Fields(cfg.NotifyCommand)
		return cfddns.NewCommandNotifier(parts[0], parts[1:]...), nil
	}
	return cfddns.NewWebhook(cfg.WebhookURL)
}

func newLogger(cfg Config) (*log.Logger, func() error, error) {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger.SetLevel(log.InfoLevel)
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile == "" {
		return logger, func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return logger, f.Close, nil
}

// textfileWriter writes the metrics file after every run.
type textfileWriter struct {
	cfddns.DDNSClient
	metrics *cfddns.Metrics
	path    string
	logger  log.FieldLogger
}

func (w *textfileWriter) RunDDNS(ctx context.Context) error {
	err := w.DDNSClient.RunDDNS(ctx)
	if werr := w.metrics.WriteTextfile(w.path); werr != nil {
		w.logger.Error(werr)
	}
	return err
}
