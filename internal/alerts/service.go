// Package alerts holds the alert lifecycle: idempotent creation with the
// one-open-alert-per-device guard, distributor open lists, and one-way
// resolution.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/models"
)

// Store is the persistence surface the lifecycle depends on. *db.DB
// implements it; tests substitute a fake.
type Store interface {
	InsertOpenAlert(ctx context.Context, alert models.Alert) (models.Alert, bool, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	GetOpenAlertByDevice(ctx context.Context, deviceID string) (models.Alert, error)
	ListOpenAlerts(ctx context.Context, distributorID string) ([]models.Alert, error)
	MarkAlertResolved(ctx context.Context, id string, resolvedAt time.Time) (int64, error)
	GetDevice(ctx context.Context, id string) (models.Device, error)
	GetConsumerScope(ctx context.Context, consumerID string) (string, string, error)
}

// Notifier receives newly created alerts for delivery to the distributor.
// Implementations must not block.
type Notifier interface {
	AlertRaised(alert models.Alert, device models.Device)
}

// Service is the alert lifecycle manager.
type Service struct {
	store     Store
	evaluator Evaluator
	notifier  Notifier
	logger    *logging.Logger
	now       func() time.Time
}

// New constructs a Service. notifier may be nil when no delivery channel is
// configured.
func New(store Store, evaluator Evaluator, notifier Notifier, logger *logging.Logger) *Service {
	return &Service{
		store:     store,
		evaluator: evaluator,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluator exposes the threshold evaluator, for callers that only need the
// decision without the side effect.
func (s *Service) Evaluator() Evaluator {
	return s.evaluator
}

// CreateAlert raises an alert for a device unless one is already open.
// Creation is idempotent: the second caller gets the first caller's alert
// back. The store enforces atomicity of the check-and-insert, so concurrent
// calls across server instances still produce a single open alert.
func (s *Service) CreateAlert(ctx context.Context, deviceID, consumerID, distributorID string, tankLevel float64, source string) (models.Alert, bool, error) {
	if deviceID == "" {
		return models.Alert{}, false, fmt.Errorf("device id is required")
	}
	if distributorID == "" {
		return models.Alert{}, false, fmt.Errorf("distributor id is required")
	}

	alert := models.Alert{
		ID:            uuid.New().String(),
		DeviceID:      deviceID,
		ConsumerID:    consumerID,
		DistributorID: distributorID,
		TankLevel:     tankLevel,
		Source:        source,
		CreatedAt:     s.now().UTC(),
	}

	stored, created, err := s.store.InsertOpenAlert(ctx, alert)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("create alert for device %s: %w", deviceID, err)
	}
	if !created {
		s.logger.Debugf("Open alert %s already exists for device %s, returning it", stored.ID, deviceID)
		return stored, false, nil
	}

	s.logger.Infof("Created %s alert %s for device %s (tank level %.1f)", source, stored.ID, deviceID, tankLevel)
	s.notify(ctx, stored)
	return stored, true, nil
}

// CreateManualAlert is the consumer-initiated refill request. Scope ids are
// derived from the device owner when the caller omits them.
func (s *Service) CreateManualAlert(ctx context.Context, deviceID, consumerID, distributorID string) (models.Alert, bool, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("manual alert for device %s: %w", deviceID, err)
	}

	// A refill request must come from the device's owner or on their behalf.
	// A mismatched consumer id would route the alert to the wrong distributor
	// and occupy the device's open-alert slot.
	if consumerID != "" && device.ConsumerID != "" && consumerID != device.ConsumerID {
		return models.Alert{}, false, fmt.Errorf("manual alert for device %s: %w", deviceID, models.ErrNotFound)
	}

	if consumerID == "" {
		consumerID = device.ConsumerID
	}
	if distributorID == "" && consumerID != "" {
		_, distributorID, err = s.store.GetConsumerScope(ctx, consumerID)
		if err != nil {
			return models.Alert{}, false, fmt.Errorf("manual alert for device %s: %w", deviceID, err)
		}
	}

	return s.CreateAlert(ctx, deviceID, consumerID, distributorID, device.Measurement, models.AlertSourceManual)
}

// AutoUpdate is the automatic path: evaluate one reading and raise a
// threshold alert when it crosses. Devices without an owning consumer are
// skipped, there is no distributor to route the alert to.
func (s *Service) AutoUpdate(ctx context.Context, deviceID string, measurement float64) (models.Alert, bool, error) {
	if !s.evaluator.ShouldNotifyLevel(measurement) {
		return models.Alert{}, false, nil
	}

	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("auto update for device %s: %w", deviceID, err)
	}
	if device.ConsumerID == "" {
		s.logger.Debugf("Device %s has no consumer, skipping auto alert", deviceID)
		return models.Alert{}, false, nil
	}

	consumerID, distributorID, err := s.store.GetConsumerScope(ctx, device.ConsumerID)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("auto update for device %s: %w", deviceID, err)
	}

	return s.CreateAlert(ctx, deviceID, consumerID, distributorID, measurement, models.AlertSourceThreshold)
}

// EvaluateDevices runs the automatic path over a distributor-scoped device
// list, once per poll cycle. A storage failure aborts the remainder of the
// cycle; the next poll retries naturally.
func (s *Service) EvaluateDevices(ctx context.Context, devices []models.Device) error {
	for _, device := range devices {
		if !s.evaluator.ShouldNotify(device) {
			continue
		}
		if _, _, err := s.AutoUpdate(ctx, device.ID, device.Measurement); err != nil {
			if errors.Is(err, models.ErrStorageUnavailable) {
				return err
			}
			s.logger.Errorf("Auto alert for device %s failed: %v", device.ID, err)
		}
	}
	return nil
}

// ListOpenAlerts returns the distributor's unresolved alerts, oldest first.
func (s *Service) ListOpenAlerts(ctx context.Context, distributorID string) ([]models.Alert, error) {
	if distributorID == "" {
		return nil, fmt.Errorf("distributor id is required")
	}
	alerts, err := s.store.ListOpenAlerts(ctx, distributorID)
	if err != nil {
		return nil, fmt.Errorf("list open alerts for distributor %s: %w", distributorID, err)
	}
	return alerts, nil
}

// ResolveAlert marks an alert resolved. The transition is one-way: resolving
// an already-resolved alert returns ErrAlreadyResolved alongside the
// unchanged alert, and never produces a second resolution event.
func (s *Service) ResolveAlert(ctx context.Context, alertID string) (models.Alert, error) {
	rows, err := s.store.MarkAlertResolved(ctx, alertID, s.now().UTC())
	if err != nil {
		return models.Alert{}, fmt.Errorf("resolve alert %s: %w", alertID, err)
	}

	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return models.Alert{}, fmt.Errorf("resolve alert %s: %w", alertID, err)
	}

	if rows == 0 {
		// Row existed but was not flipped: it was resolved before this call.
		return alert, models.ErrAlreadyResolved
	}

	s.logger.Infof("Resolved alert %s for device %s", alert.ID, alert.DeviceID)
	return alert, nil
}

func (s *Service) notify(ctx context.Context, alert models.Alert) {
	if s.notifier == nil {
		return
	}
	device, err := s.store.GetDevice(ctx, alert.DeviceID)
	if err != nil {
		s.logger.Warnf("Notify skipped, device %s lookup failed: %v", alert.DeviceID, err)
		device = models.Device{ID: alert.DeviceID, Measurement: alert.TankLevel}
	}
	s.notifier.AlertRaised(alert, device)
}
