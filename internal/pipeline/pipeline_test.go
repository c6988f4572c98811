package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/couchcryptid/seismic-alert-service/internal/lock"
	"github.com/couchcryptid/seismic-alert-service/internal/observability"
	"github.com/couchcryptid/seismic-alert-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockTenants struct {
	tenants []domain.TenantConfig
	err     error
}

func (m *mockTenants) ListEnabled(_ context.Context) ([]domain.TenantConfig, error) {
	return m.tenants, m.err
}

type mockFeed struct {
	events map[string][]domain.SeismicEvent
	errs   map[string]error
	calls  int
}

func (m *mockFeed) Fetch(_ context.Context, url string) ([]domain.SeismicEvent, error) {
	m.calls++
	if err := m.errs[url]; err != nil {
		return nil, err
	}
	return m.events[url], nil
}

// memLedger keeps records in insertion order and prunes by timestamp,
// newest first, like the SQLite store.
type memLedger struct {
	mu      sync.Mutex
	records []domain.DeliveryRecord
	maxSeen int
}

func (m *memLedger) KnownSourceIDs(_ context.Context, tenantID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := map[string]struct{}{}
	for _, r := range m.records {
		if r.TenantID == tenantID {
			known[r.SourceID] = struct{}{}
		}
	}
	return known, nil
}

func (m *memLedger) AppendDelivery(_ context.Context, rec domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.TenantID == rec.TenantID && r.SourceID == rec.SourceID {
			return nil
		}
	}
	m.records = append(m.records, rec)
	if n := m.countLocked(rec.TenantID); n > m.maxSeen {
		m.maxSeen = n
	}
	return nil
}

func (m *memLedger) PruneDeliveries(_ context.Context, tenantID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	type indexed struct {
		idx int
		rec domain.DeliveryRecord
	}
	var own []indexed
	var rest []domain.DeliveryRecord
	for i, r := range m.records {
		if r.TenantID == tenantID {
			own = append(own, indexed{i, r})
		} else {
			rest = append(rest, r)
		}
	}
	sort.SliceStable(own, func(a, b int) bool {
		if !own[a].rec.Timestamp.Equal(own[b].rec.Timestamp) {
			return own[a].rec.Timestamp.After(own[b].rec.Timestamp)
		}
		return own[a].idx > own[b].idx
	})
	if len(own) > keep {
		own = own[:keep]
	}
	sort.Slice(own, func(a, b int) bool { return own[a].idx < own[b].idx })
	for _, o := range own {
		rest = append(rest, o.rec)
	}
	m.records = rest
	return nil
}

func (m *memLedger) countLocked(tenantID string) int {
	n := 0
	for _, r := range m.records {
		if r.TenantID == tenantID {
			n++
		}
	}
	return n
}

func (m *memLedger) find(tenantID, sourceID string) *domain.DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.TenantID == tenantID && r.SourceID == sourceID {
			return &r
		}
	}
	return nil
}

func (m *memLedger) count(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(tenantID)
}

type mockMatcher struct {
	byCity  map[string][]int64
	queries [][]string
}

func (m *mockMatcher) MatchSubscribers(_ context.Context, _ string, cities []string) ([]int64, error) {
	m.queries = append(m.queries, cities)
	seen := map[int64]bool{}
	var out []int64
	for _, c := range cities {
		for _, id := range m.byCity[c] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64, _ string) (domain.GeocodingResult, error) {
	return m.result, m.err
}

type mockNotifier struct {
	resolveErr error
	sendErr    error
	directErr  map[int64]error

	channelAlerts []domain.Alert
	directSent    []int64
	directTried   []int64
}

func (m *mockNotifier) ResolveChannel(_ context.Context, _ int64) error { return m.resolveErr }

func (m *mockNotifier) SendChannel(_ context.Context, _ int64, alert domain.Alert) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.channelAlerts = append(m.channelAlerts, alert)
	return nil
}

func (m *mockNotifier) SendDirect(_ context.Context, id int64, _ domain.Alert) error {
	m.directTried = append(m.directTried, id)
	if err := m.directErr[id]; err != nil {
		return err
	}
	m.directSent = append(m.directSent, id)
	return nil
}

type mockPublisher struct {
	published []domain.DeliveryRecord
	err       error
}

func (m *mockPublisher) PublishDelivery(_ context.Context, rec domain.DeliveryRecord) error {
	m.published = append(m.published, rec)
	return m.err
}

// --- fixtures ---

const (
	tenantID = "-100123"
	feedURL  = "https://www.seismicportal.eu/fdsnws/event/1/query?format=json&limit=50"
)

var cycleTime = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func tenant(threshold float64) domain.TenantConfig {
	cfg := domain.NewTenantConfig(tenantID)
	cfg.Enabled = true
	cfg.ChannelID = ptr(int64(-100999))
	cfg.FeedURL = ptr(feedURL)
	cfg.MagnitudeThreshold = threshold
	return cfg
}

func event(id string, mag float64) domain.SeismicEvent {
	return domain.SeismicEvent{
		SourceID:  id,
		Time:      cycleTime.Add(-10 * time.Minute),
		Magnitude: mag,
		Lat:       41.0082,
		Lon:       28.9784,
		Authority: "KOERI",
	}
}

type harness struct {
	tenants   *mockTenants
	feed      *mockFeed
	ledger    *memLedger
	matcher   *mockMatcher
	geocoder  *mockGeocoder
	notifier  *mockNotifier
	publisher *mockPublisher
	locker    *lock.Memory
	clock     *clockwork.FakeClock
	metrics   *observability.Metrics
	pipeline  *pipeline.Pipeline
}

func newHarness(cfg domain.TenantConfig, events ...domain.SeismicEvent) *harness {
	h := &harness{
		tenants:   &mockTenants{tenants: []domain.TenantConfig{cfg}},
		feed:      &mockFeed{events: map[string][]domain.SeismicEvent{feedURL: events}},
		ledger:    &memLedger{},
		matcher:   &mockMatcher{byCity: map[string][]int64{}},
		geocoder:  &mockGeocoder{result: domain.GeocodingResult{Locality: "Fatih", City: "İstanbul", PrincipalSubdivision: "İstanbul"}},
		notifier:  &mockNotifier{},
		publisher: &mockPublisher{},
		locker:    lock.NewMemory(),
		clock:     clockwork.NewFakeClockAt(cycleTime),
		metrics:   observability.NewMetricsForTesting(),
	}
	h.pipeline = pipeline.New(pipeline.Deps{
		Tenants:     h.tenants,
		Feed:        h.feed,
		Ledger:      h.ledger,
		Subscribers: h.matcher,
		Geocoder:    h.geocoder,
		Notifier:    h.notifier,
		Publisher:   h.publisher,
		Locker:      h.locker,
	}, h.clock, slog.Default(), h.metrics)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	require.NoError(t, h.pipeline.RunCycle(context.Background()))
}

// --- scenarios ---

func TestRunCycle_DeliversEventAboveThreshold(t *testing.T) {
	h := newHarness(tenant(5.0), event("evt-1", 5.2))
	h.matcher.byCity["istanbul"] = []int64{11, 12}

	h.run(t)

	require.Len(t, h.notifier.channelAlerts, 1)
	assert.Equal(t, "evt-1", h.notifier.channelAlerts[0].SourceID)
	assert.Equal(t, "Fatih", h.notifier.channelAlerts[0].Location)
	assert.Equal(t, []int64{11, 12}, h.notifier.directSent)

	want := &domain.DeliveryRecord{
		TenantID:  tenantID,
		SourceID:  "evt-1",
		Authority: "KOERI",
		Delivered: true,
		Timestamp: cycleTime,
	}
	if diff := cmp.Diff(want, h.ledger.find(tenantID, "evt-1")); diff != "" {
		t.Fatalf("delivery record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, h.ledger.count(tenantID))
	require.Len(t, h.publisher.published, 1)
	assert.True(t, h.publisher.published[0].Delivered)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Deliveries.WithLabelValues("delivered")), 0)
}

func TestRunCycle_SendFailureRecordsUndelivered(t *testing.T) {
	h := newHarness(tenant(5.0), event("evt-1", 5.2))
	h.matcher.byCity["istanbul"] = []int64{11}
	h.notifier.sendErr = errors.New("forbidden: bot was kicked")

	h.run(t)

	rec := h.ledger.find(tenantID, "evt-1")
	require.NotNil(t, rec)
	assert.False(t, rec.Delivered)
	assert.Empty(t, h.notifier.directTried, "no fan-out after a failed channel send")

	// The record forecloses the event in later cycles.
	h.notifier.sendErr = nil
	h.run(t)
	assert.Empty(t, h.notifier.channelAlerts)
	assert.Equal(t, 1, h.ledger.count(tenantID))
}

func TestRunCycle_UnreachableChannelLeavesEventEligible(t *testing.T) {
	h := newHarness(tenant(5.0), event("evt-1", 5.2))
	h.notifier.resolveErr = fmt.Errorf("%w: chat not found", domain.ErrChannelUnreachable)

	h.run(t)

	assert.Zero(t, h.ledger.count(tenantID))
	assert.Empty(t, h.publisher.published)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Deliveries.WithLabelValues("unreachable")), 0)

	h.notifier.resolveErr = nil
	h.run(t)
	require.Len(t, h.notifier.channelAlerts, 1)
	assert.Equal(t, "evt-1", h.notifier.channelAlerts[0].SourceID)
}

func TestRunCycle_BelowThresholdNeverDispatched(t *testing.T) {
	h := newHarness(tenant(5.0), event("evt-1", 4.9))

	h.run(t)

	assert.Empty(t, h.notifier.channelAlerts)
	assert.Zero(t, h.ledger.count(tenantID))
	assert.Empty(t, h.matcher.queries)
}

// --- edge cases ---

func TestRunCycle_GeoFailureDeliversUnknownWithoutFanOut(t *testing.T) {
	h := newHarness(tenant(4.0), event("evt-1", 4.5))
	h.geocoder.err = errors.New("timeout")
	h.matcher.byCity["istanbul"] = []int64{11}

	h.run(t)

	require.Len(t, h.notifier.channelAlerts, 1)
	assert.Equal(t, domain.UnknownLocation, h.notifier.channelAlerts[0].Location)
	assert.Empty(t, h.matcher.queries, "no match query without candidates")
	assert.Empty(t, h.notifier.directTried)
	assert.True(t, h.ledger.find(tenantID, "evt-1").Delivered)
}

func TestRunCycle_MatchesFoldedCityNames(t *testing.T) {
	h := newHarness(tenant(4.0), event("evt-1", 4.5))
	h.geocoder.result = domain.GeocodingResult{City: "İZMİR", PrincipalSubdivision: "Ege Bölgesi"}
	h.matcher.byCity["izmir"] = []int64{21}

	h.run(t)

	require.Len(t, h.matcher.queries, 1)
	assert.Equal(t, []string{"izmir", "ege bolgesi"}, h.matcher.queries[0])
	assert.Equal(t, []int64{21}, h.notifier.directSent)
	assert.Equal(t, "İZMİR", h.notifier.channelAlerts[0].Location)
}

func TestRunCycle_DirectFailureIsIsolated(t *testing.T) {
	h := newHarness(tenant(4.0), event("evt-1", 4.5))
	h.matcher.byCity["istanbul"] = []int64{1, 2, 3}
	h.notifier.directErr = map[int64]error{2: errors.New("bot blocked by user")}

	h.run(t)

	assert.Equal(t, []int64{1, 2, 3}, h.notifier.directTried)
	assert.Equal(t, []int64{1, 3}, h.notifier.directSent)
	assert.True(t, h.ledger.find(tenantID, "evt-1").Delivered)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.DirectNotifications.WithLabelValues("failed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.DirectNotifications.WithLabelValues("sent")), 0)
}

func TestRunCycle_EscalationContent(t *testing.T) {
	cfg := tenant(4.0)
	cfg.PingRole = ptr("quakewatch")
	cfg.EveryoneThreshold = ptr(6.0)
	h := newHarness(cfg, event("small", 4.5), event("big", 6.3))

	h.run(t)

	require.Len(t, h.notifier.channelAlerts, 2)
	assert.Equal(t, "@quakewatch", h.notifier.channelAlerts[0].Content)
	assert.Equal(t, "@quakewatch @everyone", h.notifier.channelAlerts[1].Content)
}

func TestRunCycle_FeedOrderPreservedAndCapped(t *testing.T) {
	var events []domain.SeismicEvent
	for i := range 30 {
		events = append(events, event(fmt.Sprintf("evt-%02d", i), 5))
	}
	h := newHarness(tenant(4.0), events...)

	h.run(t)

	require.Len(t, h.notifier.channelAlerts, domain.MaxEventsPerCycle)
	for i, a := range h.notifier.channelAlerts {
		assert.Equal(t, fmt.Sprintf("evt-%02d", i), a.SourceID)
	}
}

func TestRunCycle_LedgerNeverExceedsRetention(t *testing.T) {
	h := newHarness(tenant(4.0))
	for cycle := range 4 {
		var events []domain.SeismicEvent
		for i := range domain.MaxEventsPerCycle {
			events = append(events, event(fmt.Sprintf("c%d-e%02d", cycle, i), 5))
		}
		h.feed.events[feedURL] = events
		h.run(t)
		h.clock.Advance(5 * time.Minute)
	}

	assert.Equal(t, pipeline.LedgerRetention, h.ledger.count(tenantID))
	assert.LessOrEqual(t, h.ledger.maxSeen, pipeline.LedgerRetention)
	assert.NotNil(t, h.ledger.find(tenantID, "c3-e24"), "newest record retained")
	assert.Nil(t, h.ledger.find(tenantID, "c1-e24"), "older records pruned")
}

func TestRunCycle_SkipsUnconfiguredTenant(t *testing.T) {
	cfg := tenant(4.0)
	cfg.ChannelID = nil
	h := newHarness(cfg, event("evt-1", 5))

	h.run(t)

	assert.Zero(t, h.feed.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.TenantsSkipped.WithLabelValues("not_configured")), 0)
}

func TestRunCycle_SkipsLockedTenant(t *testing.T) {
	h := newHarness(tenant(4.0), event("evt-1", 5))
	release, ok, err := h.locker.TryLock(context.Background(), tenantID)
	require.NoError(t, err)
	require.True(t, ok)

	h.run(t)
	assert.Zero(t, h.feed.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.TenantsSkipped.WithLabelValues("locked")), 0)

	release()
	h.run(t)
	assert.Equal(t, 1, h.feed.calls)
	assert.Len(t, h.notifier.channelAlerts, 1)
}

func TestRunCycle_FeedErrorSkipsOnlyThatTenant(t *testing.T) {
	broken := tenant(4.0)
	broken.TenantID = "broken"
	broken.FeedURL = ptr("https://www.seismicportal.eu/fdsnws/event/1/query?broken=1")

	h := newHarness(tenant(4.0), event("evt-1", 5))
	h.tenants.tenants = []domain.TenantConfig{broken, tenant(4.0)}
	h.feed.errs = map[string]error{*broken.FeedURL: fmt.Errorf("%w: status 503", domain.ErrFeedUnavailable)}

	h.run(t)

	assert.Equal(t, 2, h.feed.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.FeedErrors), 0)
	assert.Len(t, h.notifier.channelAlerts, 1)
	assert.Zero(t, h.ledger.count("broken"))
}

func TestRunCycle_PublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(tenant(4.0), event("evt-1", 5), event("evt-2", 5))
	h.publisher.err = errors.New("broker down")

	h.run(t)

	assert.Equal(t, 2, h.ledger.count(tenantID))
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.PublishErrors), 0)
}

func TestRunCycle_ListErrorReturned(t *testing.T) {
	h := newHarness(tenant(4.0))
	h.tenants.err = errors.New("database is locked")

	err := h.pipeline.RunCycle(context.Background())
	require.Error(t, err)
	assert.Error(t, h.pipeline.CheckReadiness(context.Background()))
}

func TestCheckReadiness(t *testing.T) {
	h := newHarness(tenant(4.0))
	require.Error(t, h.pipeline.CheckReadiness(context.Background()))

	h.run(t)
	assert.NoError(t, h.pipeline.CheckReadiness(context.Background()))
}
