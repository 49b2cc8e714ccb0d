package cfddns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// DefaultIPService is an IPv4-only echo service answering {"ip": "<addr>"}.
const DefaultIPService = "https://api.ipify.org?format=json"

const lookupTimeout = 10 * time.Second

// WebResolver constructs a resolver which asks an external web service for the "public" IPv4 address.
//
// The service must speak http, return a 2xx status,
// and reply with a JSON object whose "ip" field holds an IPv4 address.
// All other responses are considered an error.
func WebResolver(serviceURL string) (Resolver, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in IP service URL", u.Scheme)
	}
	return &webResolver{serviceURL: u}, nil
}

type webResolver struct {
	httpClient *http.Client
	serviceURL *url.URL
}

// Resolve implements cfddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	// the timeout applies even if the caller supplied context.Background and a client without one
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wr.serviceURL.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = defaultHTTPClient()
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: ip lookup request failed: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, fmt.Errorf("%w: ip lookup returned %s", ErrHTTP, resp.Status)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return netip.Addr{}, fmt.Errorf("%w: error decoding ip lookup response: %s", ErrParse, err)
	}
	if body.IP == "" {
		return netip.Addr{}, fmt.Errorf("%w: ip lookup response has no \"ip\" field", ErrParse)
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(body.IP))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: error parsing IP address from response body: %s", ErrParse, err)
	}
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: ip lookup returned %s which is not an IPv4 address", ErrParse, ip)
	}
	return ip, nil
}

func (wr *webResolver) SetHTTPClient(c *http.Client) {
	wr.httpClient = c
}
