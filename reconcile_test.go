package cfddns_test

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/Travis-Britz/cfddns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	records   map[string][]cfddns.Record
	listErr   map[string]error
	updateErr map[string]error

	listed  []string
	updated []string
	ips     []netip.Addr
}

func (p *fakeProvider) ListAddressRecords(_ context.Context, zoneID string) ([]cfddns.Record, error) {
	p.listed = append(p.listed, zoneID)
	return p.records[zoneID], p.listErr[zoneID]
}

func (p *fakeProvider) UpdateAddressRecord(_ context.Context, zoneID string, r cfddns.Record, ip netip.Addr) error {
	p.updated = append(p.updated, r.Name)
	p.ips = append(p.ips, ip)
	return p.updateErr[r.Name]
}

type memStore struct {
	ip      string
	found   bool
	loadErr error
	saves   int
}

func (s *memStore) Load() (string, bool, error) {
	return s.ip, s.found, s.loadErr
}

func (s *memStore) Save(ip string) error {
	s.ip, s.found = ip, true
	s.saves++
	return nil
}

type recordingNotifier struct {
	reports []cfddns.Report
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, r cfddns.Report) error {
	n.reports = append(n.reports, r)
	return n.err
}

type staticProbe struct{}

func (staticProbe) ServiceStatus(context.Context) string  { return "active" }
func (staticProbe) PendingUpdates(context.Context) string { return "Up-to-date" }

func resolveTo(ip string) cfddns.Option {
	return cfddns.UsingResolver(cfddns.ResolverFunc(func(context.Context) (netip.Addr, error) {
		return netip.MustParseAddr(ip), nil
	}))
}

func newTestClient(t *testing.T, zones []cfddns.Zone, options ...cfddns.Option) *cfddns.Client {
	t.Helper()
	c, err := cfddns.New(zones, options...)
	require.NoError(t, err)
	return c
}

var exampleZone = cfddns.Zone{Name: "example.com", ID: "zone-a"}

func TestUpdatesChangedRecord(t *testing.T) {
	provider := &fakeProvider{records: map[string][]cfddns.Record{
		"zone-a": {{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4"}},
	}}
	store := &memStore{}
	notifier := &recordingNotifier{}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		cfddns.UsingNotifier(notifier),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Changed)
	assert.Contains(t, res.Summary, "Updated www.example.com to 5.6.7.8 (Proxied: ✅)")
	assert.Equal(t, []string{"www.example.com"}, provider.updated)
	assert.Equal(t, "5.6.7.8", store.ip)
	assert.Equal(t, 1, store.saves)

	require.Len(t, notifier.reports, 1)
	assert.Equal(t, "5.6.7.8", notifier.reports[0].IP)
	assert.Equal(t, res.Summary, notifier.reports[0].Summary)
	assert.Equal(t, "N/A", notifier.reports[0].ServiceStatus)
	assert.Equal(t, "N/A", notifier.reports[0].UpdateStatus)
}

func TestUnchangedIPSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	store := &memStore{ip: "5.6.7.8", found: true}
	notifier := &recordingNotifier{}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		cfddns.UsingNotifier(notifier),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Changed)
	assert.Empty(t, provider.listed)
	assert.Empty(t, notifier.reports)
	assert.Zero(t, store.saves)
}

func TestMissingStoreForcesReconcile(t *testing.T) {
	provider := &fakeProvider{records: map[string][]cfddns.Record{
		"zone-a": {{ID: "rec-1", Name: "www.example.com", Target: "5.6.7.8"}},
	}}
	store := &memStore{}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"zone-a"}, provider.listed)
	assert.Empty(t, provider.updated)
	assert.Equal(t, []string{"Zone 'example.com': All 'A' records already up-to-date."}, res.Summary)
	assert.Equal(t, 1, store.saves)
}

func TestUnreadableStoreForcesReconcile(t *testing.T) {
	provider := &fakeProvider{}
	store := &memStore{loadErr: fmt.Errorf("%w: permission denied", cfddns.ErrIO)}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		resolveTo("5.6.7.8"),
	)

	_, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zone-a"}, provider.listed)
}

func TestMatchingRecordNotReported(t *testing.T) {
	provider := &fakeProvider{records: map[string][]cfddns.Record{
		"zone-a": {
			{ID: "rec-1", Name: "example.com", Target: "5.6.7.8"},
			{ID: "rec-2", Name: "www.example.com", Target: "1.2.3.4"},
		},
	}}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(&memStore{}),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"www.example.com"}, provider.updated)
	assert.Equal(t, []string{
		"--- Zone: example.com ---",
		"Updated www.example.com to 5.6.7.8 (Proxied: ✅)",
	}, res.Summary)
}

func TestPartialFailureKeepsStoredIP(t *testing.T) {
	provider := &fakeProvider{
		records: map[string][]cfddns.Record{
			"zone-a": {{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4"}},
			"zone-b": {{ID: "rec-2", Name: "www.example.org", Target: "1.2.3.4"}},
		},
		updateErr: map[string]error{
			"www.example.org": &cfddns.APIError{StatusCode: 400, Message: "record locked"},
		},
	}
	store := &memStore{ip: "1.2.3.4", found: true}
	notifier := &recordingNotifier{}
	c := newTestClient(t, []cfddns.Zone{exampleZone, {Name: "example.org", ID: "zone-b"}},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		cfddns.UsingNotifier(notifier),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{
		"--- Zone: example.com ---",
		"Updated www.example.com to 5.6.7.8 (Proxied: ✅)",
		"--- Zone: example.org ---",
		"Failed to update www.example.org: record locked",
	}, res.Summary)
	assert.Equal(t, "1.2.3.4", store.ip)
	assert.Zero(t, store.saves)
	require.Len(t, notifier.reports, 1)
	assert.False(t, notifier.reports[0].Success)
}

func TestFailureDoesNotStopRemainingRecords(t *testing.T) {
	provider := &fakeProvider{
		records: map[string][]cfddns.Record{
			"zone-a": {
				{ID: "rec-1", Name: "a.example.com", Target: "1.2.3.4"},
				{ID: "rec-2", Name: "b.example.com", Target: "1.2.3.4"},
			},
		},
		updateErr: map[string]error{"a.example.com": fmt.Errorf("%w: connection reset", cfddns.ErrNetwork)},
	}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(&memStore{}),
		resolveTo("5.6.7.8"),
	)

	err := c.RunDDNS(context.Background())
	assert.ErrorIs(t, err, cfddns.ErrPartialFailure)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, provider.updated)
}

func TestEmptyOrFailedZoneIsNotAFailure(t *testing.T) {
	provider := &fakeProvider{
		records: map[string][]cfddns.Record{
			"zone-c": {{ID: "rec-3", Name: "www.example.net", Target: "1.2.3.4"}},
		},
		listErr: map[string]error{"zone-b": errors.New("Authentication error")},
	}
	store := &memStore{}
	c := newTestClient(t, []cfddns.Zone{exampleZone, {Name: "example.org", ID: "zone-b"}, {Name: "example.net", ID: "zone-c"}},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"zone-a", "zone-b", "zone-c"}, provider.listed)
	assert.Equal(t, []string{
		"Zone 'example.com': No 'A' records found or error fetching records.",
		"Zone 'example.org': No 'A' records found or error fetching records.",
		"--- Zone: example.net ---",
		"Updated www.example.net to 5.6.7.8 (Proxied: ✅)",
	}, res.Summary)
	assert.Equal(t, "5.6.7.8", store.ip)
}

func TestMalformedRecordSkipped(t *testing.T) {
	provider := &fakeProvider{records: map[string][]cfddns.Record{
		"zone-a": {
			{ID: "", Name: "broken.example.com", Target: "1.2.3.4"},
			{ID: "rec-2", Name: "www.example.com", Target: ""},
		},
	}}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(&memStore{}),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, provider.updated)
	assert.Equal(t, 2, res.Skipped)
	assert.True(t, res.Success)
}

func TestResolveFailureAbortsRun(t *testing.T) {
	provider := &fakeProvider{}
	store := &memStore{ip: "1.2.3.4", found: true}
	notifier := &recordingNotifier{}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		cfddns.UsingNotifier(notifier),
		cfddns.UsingResolver(cfddns.ResolverFunc(func(context.Context) (netip.Addr, error) {
			return netip.Addr{}, fmt.Errorf("%w: i/o timeout", cfddns.ErrNetwork)
		})),
	)

	_, err := c.Reconcile(context.Background())
	assert.ErrorIs(t, err, cfddns.ErrNetwork)
	assert.Empty(t, provider.listed)
	assert.Empty(t, notifier.reports)
	assert.Zero(t, store.saves)
	assert.Equal(t, "1.2.3.4", store.ip)
}

func TestNotifierFailureStillSavesIP(t *testing.T) {
	provider := &fakeProvider{records: map[string][]cfddns.Record{
		"zone-a": {{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4"}},
	}}
	store := &memStore{}
	notifier := &recordingNotifier{err: fmt.Errorf("%w: exit status 1", cfddns.ErrExec)}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(store),
		cfddns.UsingNotifier(notifier),
		resolveTo("5.6.7.8"),
	)

	res, err := c.Reconcile(context.Background())
	assert.ErrorIs(t, err, cfddns.ErrExec)
	assert.True(t, res.Success)
	assert.Equal(t, "5.6.7.8", store.ip)
}

func TestProbesAugmentReport(t *testing.T) {
	provider := &fakeProvider{records: map[string][]cfddns.Record{
		"zone-a": {{ID: "rec-1", Name: "www.example.com", Target: "1.2.3.4"}},
	}}
	notifier := &recordingNotifier{}
	c := newTestClient(t, []cfddns.Zone{exampleZone},
		cfddns.UsingProvider(provider),
		cfddns.UsingStore(&memStore{}),
		cfddns.UsingNotifier(notifier),
		cfddns.WithServiceCheck(staticProbe{}),
		cfddns.WithUpdateCheck(staticProbe{}),
		resolveTo("5.6.7.8"),
	)

	_, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, notifier.reports, 1)
	assert.Equal(t, "active", notifier.reports[0].ServiceStatus)
	assert.Equal(t, "Up-to-date", notifier.reports[0].UpdateStatus)
}

func TestNewValidation(t *testing.T) {
	_, err := cfddns.New(nil, cfddns.UsingProvider(&fakeProvider{}))
	assert.ErrorIs(t, err, cfddns.ErrNoZones)

	_, err = cfddns.New([]cfddns.Zone{{Name: "example.com"}}, cfddns.UsingProvider(&fakeProvider{}))
	assert.Error(t, err)

	_, err = cfddns.New([]cfddns.Zone{exampleZone})
	assert.Error(t, err, "a provider is required")

	c, err := cfddns.New([]cfddns.Zone{{ID: "zone-x"}}, cfddns.UsingProvider(&fakeProvider{}))
	require.NoError(t, err)
	assert.Equal(t, []cfddns.Zone{{Name: "zone-x", ID: "zone-x"}}, c.Zones())
}
