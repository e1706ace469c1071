package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/models"
)

// fakeStore is an in-memory Store enforcing the same open-alert uniqueness
// the partial index provides in Postgres.
type fakeStore struct {
	mu      sync.Mutex
	devices map[string]models.Device
	scopes  map[string]string // consumer_id -> distributor_id
	alerts  map[string]models.Alert
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices: map[string]models.Device{},
		scopes:  map[string]string{},
		alerts:  map[string]models.Alert{},
	}
}

func (f *fakeStore) InsertOpenAlert(_ context.Context, alert models.Alert) (models.Alert, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return models.Alert{}, false, models.ErrStorageUnavailable
	}
	for _, a := range f.alerts {
		if a.DeviceID == alert.DeviceID && !a.Resolved {
			return a, false, nil
		}
	}
	f.alerts[alert.ID] = alert
	return alert, true, nil
}

func (f *fakeStore) GetAlert(_ context.Context, id string) (models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return models.Alert{}, fmt.Errorf("get alert: %w", models.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) GetOpenAlertByDevice(_ context.Context, deviceID string) (models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.DeviceID == deviceID && !a.Resolved {
			return a, nil
		}
	}
	return models.Alert{}, fmt.Errorf("get open alert: %w", models.ErrNotFound)
}

func (f *fakeStore) ListOpenAlerts(_ context.Context, distributorID string) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, models.ErrStorageUnavailable
	}
	out := []models.Alert{}
	for _, a := range f.alerts {
		if a.DistributorID == distributorID && !a.Resolved {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) MarkAlertResolved(_ context.Context, id string, resolvedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok || a.Resolved {
		return 0, nil
	}
	a.Resolved = true
	a.ResolvedAt = &resolvedAt
	f.alerts[id] = a
	return 1, nil
}

func (f *fakeStore) GetDevice(_ context.Context, id string) (models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return models.Device{}, models.ErrStorageUnavailable
	}
	d, ok := f.devices[id]
	if !ok {
		return models.Device{}, fmt.Errorf("get device: %w", models.ErrNotFound)
	}
	return d, nil
}

func (f *fakeStore) GetConsumerScope(_ context.Context, consumerID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	did, ok := f.scopes[consumerID]
	if !ok {
		return "", "", fmt.Errorf("get consumer scope: %w", models.ErrNotFound)
	}
	return consumerID, did, nil
}

// recordingNotifier counts deliveries.
type recordingNotifier struct {
	mu     sync.Mutex
	raised []models.Alert
}

func (n *recordingNotifier) AlertRaised(alert models.Alert, _ models.Device) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raised = append(n.raised, alert)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.raised)
}

func newTestService(t *testing.T, store Store, notifier Notifier) *Service {
	t.Helper()
	logger, err := logging.New(t.TempDir(), "debug")
	require.NoError(t, err)
	t.Cleanup(logger.Close)
	return New(store, Evaluator{Threshold: 65}, notifier, logger)
}

func seedDevice(store *fakeStore, id, consumerID, distributorID string, measurement float64) {
	store.devices[id] = models.Device{
		ID:          id,
		Measurement: measurement,
		TankLevelCm: 120,
		Timestamp:   time.Now().UTC(),
		ConsumerID:  consumerID,
	}
	if consumerID != "" {
		store.scopes[consumerID] = distributorID
	}
}

func TestCreateAlert_Idempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	first, created, err := svc.CreateAlert(ctx, "D1", "c1", "d1", 78, models.AlertSourceThreshold)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.CreateAlert(ctx, "D1", "c1", "d1", 80, models.AlertSourceThreshold)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	open, err := store.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestCreateAlert_NotifiesOnlyOnCreation(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	svc := newTestService(t, store, notifier)
	ctx := context.Background()

	seedDevice(store, "D1", "c1", "d1", 78)

	_, _, err := svc.CreateAlert(ctx, "D1", "c1", "d1", 78, models.AlertSourceThreshold)
	require.NoError(t, err)
	_, _, err = svc.CreateAlert(ctx, "D1", "c1", "d1", 79, models.AlertSourceThreshold)
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.count())
}

func TestResolveAlert_OneWayTransition(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	alert, _, err := svc.CreateAlert(ctx, "D1", "c1", "d1", 70, models.AlertSourceManual)
	require.NoError(t, err)

	resolved, err := svc.ResolveAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)
	firstResolvedAt := *resolved.ResolvedAt

	// Second resolve: recoverable error, no second resolution event.
	again, err := svc.ResolveAlert(ctx, alert.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	assert.True(t, again.Resolved)
	require.NotNil(t, again.ResolvedAt)
	assert.Equal(t, firstResolvedAt, *again.ResolvedAt)
}

func TestResolveAlert_NotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)

	_, err := svc.ResolveAlert(context.Background(), "no-such-alert")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveAlert_FreshAlertAfterResolution(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	first, _, err := svc.CreateAlert(ctx, "D1", "c1", "d1", 70, models.AlertSourceThreshold)
	require.NoError(t, err)
	_, err = svc.ResolveAlert(ctx, first.ID)
	require.NoError(t, err)

	// Condition recurs: a fresh alert is created, the old one stays resolved.
	second, created, err := svc.CreateAlert(ctx, "D1", "c1", "d1", 72, models.AlertSourceThreshold)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAutoUpdate_AboveThresholdRaises(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D1", "c1", "d1", 78)

	alert, created, err := svc.AutoUpdate(ctx, "D1", 78)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.AlertSourceThreshold, alert.Source)
	assert.Equal(t, "c1", alert.ConsumerID)
	assert.Equal(t, "d1", alert.DistributorID)

	open, err := svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "D1", open[0].DeviceID)
}

func TestAutoUpdate_BelowThresholdNoAlert(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D2", "c2", "d1", 40)

	_, created, err := svc.AutoUpdate(ctx, "D2", 40)
	require.NoError(t, err)
	assert.False(t, created)

	open, err := svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAutoUpdate_UnassignedDeviceSkipped(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D9", "", "", 90)

	_, created, err := svc.AutoUpdate(ctx, "D9", 90)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCreateManualAlert_BelowAutoThreshold(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D2", "c2", "d1", 40)

	// Manual refill requests are allowed at any level.
	alert, created, err := svc.CreateManualAlert(ctx, "D2", "c2", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.AlertSourceManual, alert.Source)
	assert.Equal(t, "d1", alert.DistributorID)

	open, err := svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "D2", open[0].DeviceID)
}

func TestCreateManualAlert_ForeignConsumerRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D1", "c-owner", "d-owner", 40)
	store.scopes["c-intruder"] = "d-intruder"

	// A consumer cannot flag someone else's device; the open-alert slot and
	// the distributor routing both belong to the owner.
	_, _, err := svc.CreateManualAlert(ctx, "D1", "c-intruder", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	alert, created, err := svc.CreateManualAlert(ctx, "D1", "c-owner", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "c-owner", alert.ConsumerID)
	assert.Equal(t, "d-owner", alert.DistributorID)

	open, err := svc.ListOpenAlerts(ctx, "d-owner")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "D1", open[0].DeviceID)

	open, err = svc.ListOpenAlerts(ctx, "d-intruder")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCreateManualAlert_DeviceNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)

	_, _, err := svc.CreateManualAlert(context.Background(), "missing", "c1", "d1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEvaluateDevices_PollCycle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D1", "c1", "d1", 78)
	seedDevice(store, "D2", "c2", "d1", 40)

	devices := []models.Device{store.devices["D1"], store.devices["D2"]}

	require.NoError(t, svc.EvaluateDevices(ctx, devices))
	open, err := svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "D1", open[0].DeviceID)

	// Poll cycles repeat; re-evaluation must not duplicate alerts.
	require.NoError(t, svc.EvaluateDevices(ctx, devices))
	open, err = svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestEvaluateDevices_StorageFailureSkipsCycle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	seedDevice(store, "D1", "c1", "d1", 78)
	devices := []models.Device{store.devices["D1"]}
	store.failing = true

	err := svc.EvaluateDevices(ctx, devices)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestCreateAlert_StorageErrorSurfaced(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	store.failing = true

	_, _, err := svc.CreateAlert(context.Background(), "D1", "c1", "d1", 70, models.AlertSourceManual)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestListOpenAlerts_DeterministicOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	for i, dev := range []string{"D1", "D2", "D3"} {
		seedDevice(store, dev, fmt.Sprintf("c%d", i), "d1", 70)
		_, _, err := svc.CreateAlert(ctx, dev, fmt.Sprintf("c%d", i), "d1", 70, models.AlertSourceThreshold)
		require.NoError(t, err)
	}

	first, err := svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	second, err := svc.ListOpenAlerts(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}
