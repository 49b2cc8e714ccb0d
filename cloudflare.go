package cfddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/sirupsen/logrus"
)

const providerTimeout = 10 * time.Second

func newCloudflareProvider(token string, opts ...cloudflare.Option) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	cf.httpClient = defaultHTTPClient()
	// a failed call fails the run; the next scheduled run is the retry
	opts = append([]cloudflare.Option{
		cloudflare.UsingRetryPolicy(0, 0, 0),
		cloudflare.HTTPClient(cf.httpClient),
	}, opts...)
	cf.api, err = cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.token = token
	cf.logger = discard
	return cf, nil
}

// cloudflareProvider implements cfddns.Provider.
//
// Records are listed through the cloudflare-go client.
// Updates are sent as a full PUT so the record type, ttl and proxied flag are always rewritten.
type cloudflareProvider struct {
	api        *cloudflare.API
	httpClient *http.Client
	token      string
	logger     logrus.FieldLogger
}

func (cf *cloudflareProvider) ListAddressRecords(ctx context.Context, zoneID string) ([]Record, error) {
	if cf.api == nil {
		return nil, errors.New("cfddns: cloudflare provider should be constructed with cfddns.UsingCloudflare")
	}
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	log := cf.logger.WithField("zone", zoneID)
	log.Debug("looking up A records...")
	found, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: "A",
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching DNS records for zone %s: %w", zoneID, err)
	}
	log.Debugf("found %d existing records", len(found))

	records := make([]Record, 0, len(found))
	for _, r := range found {
		rec := Record{
			ID:     r.ID,
			Name:   r.Name,
			Target: r.Content,
			TTL:    r.TTL,
		}
		if r.Proxied != nil {
			rec.Proxied = *r.Proxied
		}
		records = append(records, rec)
	}
	return records, nil
}

type updateRecordBody struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// UpdateAddressRecord points record at ip.
// The TTL is always 1 (automatic) and the record is always proxied, whatever it was before.
func (cf *cloudflareProvider) UpdateAddressRecord(ctx context.Context, zoneID string, record Record, ip netip.Addr) error {
	if cf.api == nil {
		return errors.New("cfddns: cloudflare provider should be constructed with cfddns.UsingCloudflare")
	}
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	payload, err := json.Marshal(updateRecordBody{
		Type:    "A",
		Name:    record.Name,
		Content: ip.String(),
		TTL:     1,
		Proxied: true,
	})
	if err != nil {
		return fmt.Errorf("error encoding update for %s: %w", record.Name, err)
	}
	uri := fmt.Sprintf("%s/zones/%s/dns_records/%s",
		strings.TrimSuffix(cf.api.BaseURL, "/"), url.PathEscape(zoneID), url.PathEscape(record.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Content-Type", "application/json")

	log := cf.logger.WithFields(logrus.Fields{"zone": zoneID, "record": record.Name})
	resp, err := cf.httpClient.Do(req)
	if err != nil {
		log.Errorf("request error updating DNS record %s (%s): %s", record.Name, record.ID, err)
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: error reading response: %s", ErrNetwork, err)
	}

	var envelope cloudflare.DNSRecordResponse
	decodeErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, errorMessages(envelope.Errors), body)
		log.WithField("status", resp.StatusCode).Errorf("HTTP error updating DNS record %s (%s): %s", record.Name, record.ID, apiErr)
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: error decoding update response: %s", ErrParse, decodeErr)
	}
	if !envelope.Success {
		msgs := errorMessages(envelope.Errors)
		if len(msgs) == 0 {
			msgs = []string{"Unknown error"}
		}
		return newAPIError(resp.StatusCode, msgs, body)
	}
	return nil
}

func (cf *cloudflareProvider) SetLogger(l logrus.FieldLogger) {
	cf.logger = l
}

func (cf *cloudflareProvider) SetHTTPClient(c *http.Client) {
	cf.httpClient = c
	if cf.api != nil {
		// this option never returns an error
		_ = cloudflare.HTTPClient(c)(cf.api)
	}
}

func errorMessages(infos []cloudflare.ResponseInfo) []string {
	var msgs []string
	for _, i := range infos {
		if i.Message != "" {
			msgs = append(msgs, i.Message)
		}
	}
	return msgs
}

// VerifyToken checks with Cloudflare that token exists and is active.
func VerifyToken(ctx context.Context, token string) error {
	api, err := cloudflare.NewWithAPIToken(token, cloudflare.UsingRetryPolicy(0, 0, 0))
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	return nil
}
