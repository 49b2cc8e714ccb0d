package cfddns

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
)

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func defaultHTTPClient() *http.Client {
	c := cleanhttp.DefaultClient()
	c.Timeout = lookupTimeout
	return c
}

func defaultResolver() Resolver {
	u, _ := url.Parse(DefaultIPService)
	return &webResolver{serviceURL: u, httpClient: defaultHTTPClient()}
}

// New returns a client reconciling zones, in order.
func New(zones []Zone, options ...Option) (*Client, error) {
	if len(zones) == 0 {
		return nil, fmt.Errorf("cfddns.New: %w", ErrNoZones)
	}
	c := &Client{
		Resolver: defaultResolver(),
		Store:    NewFileStore(DefaultIPFile),
		now:      time.Now,
	}
	for i, z := range zones {
		if z.ID == "" {
			return nil, fmt.Errorf("cfddns.New: zone %d (%q) has no ID", i, z.Name)
		}
		if z.Name == "" {
			z.Name = z.ID
		}
		c.zones = append(c.zones, z)
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("cfddns.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Provider == nil {
		return nil, fmt.Errorf("cfddns.New: no DNS provider was registered and there is no default option - use cfddns.UsingCloudflare or similar")
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	return c, nil
}

// Option configures a Client.
type Option func(*Client) error

func UsingCloudflare(token string) Option {
	return func(c *Client) (err error) {
		if c.Provider, err = newCloudflareProvider(token); err != nil {
			return fmt.Errorf("cfddns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

func UsingProvider(p Provider) Option {
	return func(c *Client) error {
		c.Provider = p
		return nil
	}
}

func UsingResolver(resolver Resolver) Option {
	return func(c *Client) error {
		if resolver == nil {
			resolver = defaultResolver()
		}
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL string) Option {
	return func(c *Client) (err error) {
		c.Resolver, err = WebResolver(serviceURL)
		return err
	}
}

func UsingStore(s Store) Option {
	return func(c *Client) error {
		if s == nil {
			s = NewFileStore(DefaultIPFile)
		}
		c.Store = s
		return nil
	}
}

// UsingIPFile keeps the last applied IP in path.
func UsingIPFile(path string) Option {
	return UsingStore(NewFileStore(path))
}

// UsingNotifier reports every run that changed the IP to n.
func UsingNotifier(n Notifier) Option {
	return func(c *Client) error {
		c.notifier = n
		return nil
	}
}

// WithServiceCheck attaches p.ServiceStatus to reports.
func WithServiceCheck(p SystemProbe) Option {
	return func(c *Client) error {
		c.serviceProbe = p
		return nil
	}
}

// WithUpdateCheck attaches p.PendingUpdates to reports.
func WithUpdateCheck(p SystemProbe) Option {
	return func(c *Client) error {
		c.updateProbe = p
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

func withLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		type setLogger interface {
			SetLogger(logrus.FieldLogger)
		}

		for _, dep := range []any{c.Provider, c.Resolver, c.Store, c.notifier, c.serviceProbe, c.updateProbe} {
			if l, ok := dep.(setLogger); ok {
				l.SetLogger(logger)
			}
		}
		return nil
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient replaces the HTTP client of every registered dependency that makes requests.
// It should be given after the dependencies it applies to.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = defaultHTTPClient()
		}
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		for _, dep := range []any{c.Provider, c.Resolver, c.notifier} {
			if hc, ok := dep.(setHTTPClient); ok {
				hc.SetHTTPClient(httpclient)
			}
		}
		return nil
	}
}

type DDNSClient interface {
	RunDDNS(ctx context.Context) error
}

// Client reconciles the address records of a fixed list of zones.
// It should be constructed with New.
type Client struct {
	Resolver
	Provider
	Store
	notifier     Notifier
	serviceProbe SystemProbe
	updateProbe  SystemProbe
	metrics      *Metrics
	logger       logrus.FieldLogger
	zones        []Zone
	now          func() time.Time
}

// Zones returns the configured zones in processing order.
func (c *Client) Zones() []Zone {
	return append([]Zone(nil), c.zones...)
}

// RunDDNS performs one run and reduces its outcome to an error.
// A run where some update failed returns an error wrapping ErrPartialFailure.
func (c *Client) RunDDNS(ctx context.Context) error {
	res, err := c.Reconcile(ctx)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%d of %d record updates failed: %w", res.Failed, res.Failed+res.Updated, ErrPartialFailure)
	}
	return nil
}

type logf interface {
	Printf(string, ...any)
}

// RunDaemon starts ddnsClient as a goroutine.
//
// A nil logger for the DDNSClient supplied by this library indicates that the daemon should send error logs to the logger configured in the client.
// Otherwise the default is to discard log messages.
func RunDaemon(ddnsClient DDNSClient, ctx context.Context, interval time.Duration, logger logf) {
	if interval < 1*time.Minute {
		interval = 1 * time.Minute
	}
	if logger == nil {
		if c, ok := ddnsClient.(*Client); ok && c.logger != nil {
			logger = c.logger
		} else {
			logger = discard
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := ddnsClient.RunDDNS(ctx)
				if err != nil {
					logger.Printf("cfddns.RunDaemon: %s", err)
				}
			}
		}
	}()
}
