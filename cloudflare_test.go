package cfddns

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponse = `{
	"success": true,
	"errors": [],
	"messages": [],
	"result": [
		{"id": "rec-1", "type": "A", "name": "www.example.com", "content": "1.2.3.4", "ttl": 300, "proxied": false},
		{"id": "rec-2", "type": "A", "name": "example.com", "content": "5.6.7.8", "ttl": 1, "proxied": true}
	],
	"result_info": {"page": 1, "per_page": 100, "count": 2, "total_count": 2, "total_pages": 1}
}`

func newTestProvider(t *testing.T, h http.HandlerFunc) *cloudflareProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cf, err := newCloudflareProvider("test-token")
	require.NoError(t, err)
	cf.api.BaseURL = srv.URL
	return cf
}

func TestListAddressRecords(t *testing.T) {
	cf := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/zones/zone-1/dns_records", r.URL.Path)
		assert.Equal(t, "A", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, listResponse)
	})

	records, err := cf.ListAddressRecords(context.Background(), "zone-1")
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4", TTL: 300, Proxied: false},
		{ID: "rec-2", Name: "example.com", Target: "5.6.7.8", TTL: 1, Proxied: true},
	}, records)
}

func TestListAddressRecordsError(t *testing.T) {
	cf := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"success": false, "errors": [{"code": 10000, "message": "Authentication error"}], "messages": [], "result": null}`)
	})

	records, err := cf.ListAddressRecords(context.Background(), "zone-1")
	assert.Error(t, err)
	assert.Empty(t, records)
}

func TestUpdateAddressRecord(t *testing.T) {
	cf := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/zones/zone-1/dns_records/rec-1", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{
			"type":    "A",
			"name":    "www.example.com",
			"content": "5.6.7.8",
			"ttl":     float64(1),
			"proxied": true,
		}, body)

		io.WriteString(w, `{"success": true, "errors": [], "messages": [], "result": {"id": "rec-1", "type": "A", "name": "www.example.com", "content": "5.6.7.8", "ttl": 1, "proxied": true}}`)
	})

	// the record was not proxied before; updates always proxy
	rec := Record{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4", TTL: 300, Proxied: false}
	err := cf.UpdateAddressRecord(context.Background(), "zone-1", rec, netip.MustParseAddr("5.6.7.8"))
	assert.NoError(t, err)
}

func TestUpdateAddressRecordFailures(t *testing.T) {
	type testCase struct {
		name     string
		status   int
		body     string
		expected string
	}

	run := func(t *testing.T, tc testCase) {
		cf := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, tc.body)
		})
		rec := Record{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4"}
		err := cf.UpdateAddressRecord(context.Background(), "zone-1", rec, netip.MustParseAddr("5.6.7.8"))

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "expected an *APIError; got %v", err)
		assert.Equal(t, tc.status, apiErr.StatusCode)
		assert.Equal(t, tc.expected, err.Error())
		assert.ErrorIs(t, err, ErrHTTP)
	}

	testCases := []testCase{
		{
			name:     "error envelope",
			status:   http.StatusBadRequest,
			body:     `{"success": false, "errors": [{"code": 1002, "message": "record locked"}], "messages": [], "result": null}`,
			expected: "record locked",
		},
		{
			name:     "raw body",
			status:   http.StatusBadGateway,
			body:     "bad gateway\n",
			expected: "HTTP 502: bad gateway",
		},
		{
			name:     "unsuccessful 200",
			status:   http.StatusOK,
			body:     `{"success": false, "errors": [], "messages": [], "result": null}`,
			expected: "Unknown error",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc)
		})
	}
}

func TestUpdateAddressRecordTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	cf, err := newCloudflareProvider("test-token")
	require.NoError(t, err)
	cf.api.BaseURL = srv.URL
	srv.Close()

	rec := Record{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4"}
	err = cf.UpdateAddressRecord(context.Background(), "zone-1", rec, netip.MustParseAddr("5.6.7.8"))
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestNewCloudflareProviderRequiresToken(t *testing.T) {
	_, err := newCloudflareProvider("")
	assert.Error(t, err)
}
