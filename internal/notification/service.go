package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"tank-monitor-service/internal/config"
	"tank-monitor-service/internal/db"
	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/models"
	"tank-monitor-service/internal/providers"
)

// ContactStore resolves a distributor's delivery target.
type ContactStore interface {
	GetDistributorContact(ctx context.Context, distributorID string) (db.Contact, error)
}

// Task is one refill notice awaiting delivery.
type Task struct {
	Alert  models.Alert
	Device models.Device
}

// WebSocketManager manages live dashboard connections per distributor.
type WebSocketManager struct {
	connections map[string]map[*websocket.Conn]bool // distributorID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

// Service dispatches refill notices to distributors via their configured
// contact channel and over WebSocket to any connected dashboards.
type Service struct {
	contacts      ContactStore
	logger        *logging.Logger
	config        config.Config
	tasks         chan Task
	ctx           context.Context
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
	providerFuncs map[string]func(context.Context, Task, db.Contact) error
	wsManager     *WebSocketManager
}

// New constructs a notification Service.
func New(contacts ContactStore, logger *logging.Logger, cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		contacts: contacts,
		logger:   logger,
		config:   cfg,
		tasks:    make(chan Task, cfg.Notification.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		wsManager: &WebSocketManager{
			connections: make(map[string]map[*websocket.Conn]bool),
			logger:      logger,
		},
	}
	svc.providerFuncs = map[string]func(context.Context, Task, db.Contact) error{
		"email": func(ctx context.Context, task Task, contact db.Contact) error {
			return providers.SendEmail(task.Alert, task.Device, contact, svc.config)
		},
		"telegram": func(ctx context.Context, task Task, contact db.Contact) error {
			return providers.SendTelegram(ctx, task.Alert, task.Device, contact, logger, svc.config)
		},
	}
	return svc
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.Notification.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the workers.
func (s *Service) Stop() {
	s.cancel()
}

// AlertRaised enqueues a refill notice. Non-blocking: a full queue drops the
// notice rather than stalling alert creation.
func (s *Service) AlertRaised(alert models.Alert, device models.Device) {
	select {
	case s.tasks <- Task{Alert: alert, Device: device}:
		s.logger.Infof("Queued refill notice for alert %s (device %s)", alert.ID, alert.DeviceID)
	default:
		s.logger.Errorf("Notification queue full, dropping notice for alert %s", alert.ID)
	}
}

// worker processes Tasks until context is cancelled
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Notification worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(task)
		}
	}
}

// handleTask delivers one refill notice to the alert's distributor.
func (s *Service) handleTask(task Task) {
	// Live dashboards get the notice regardless of contact configuration.
	s.broadcast(task)

	contact, err := s.contacts.GetDistributorContact(s.ctx, task.Alert.DistributorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Debugf("Distributor %s has no contact configured, notice for alert %s not dispatched", task.Alert.DistributorID, task.Alert.ID)
			return
		}
		s.logger.Errorf("Contact lookup for distributor %s failed: %v", task.Alert.DistributorID, err)
		return
	}

	provider, ok := s.providerFuncs[contact.Type]
	if !ok {
		s.logger.Warnf("Unknown contact type %q for distributor %s", contact.Type, task.Alert.DistributorID)
		return
	}

	if err := provider(s.ctx, task, contact); err != nil {
		s.logger.Errorf("Dispatch via %s for alert %s failed: %v", contact.Type, task.Alert.ID, err)
		return
	}
	s.logger.Infof("Alert %s dispatched via %s to distributor %s", task.Alert.ID, contact.Type, task.Alert.DistributorID)
}

func (s *Service) broadcast(task Task) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":  "alert",
		"alert": task.Alert,
	})
	if err != nil {
		s.logger.Errorf("Marshal alert %s for broadcast failed: %v", task.Alert.ID, err)
		return
	}
	s.wsManager.SendToDistributor(task.Alert.DistributorID, payload)
}

// AddConnection registers a dashboard connection for a distributor.
func (s *Service) AddConnection(distributorID string, conn *websocket.Conn) {
	s.wsManager.AddConnection(distributorID, conn)
}

// RemoveConnection deregisters a dashboard connection.
func (s *Service) RemoveConnection(distributorID string, conn *websocket.Conn) {
	s.wsManager.RemoveConnection(distributorID, conn)
}

// AddConnection adds a WebSocket connection
func (m *WebSocketManager) AddConnection(distributorID string, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[distributorID]; !exists {
		m.connections[distributorID] = make(map[*websocket.Conn]bool)
	}
	if len(m.connections[distributorID]) >= 10 {
		m.logger.Warnf("Max connections reached for distributor %s", distributorID)
		return
	}
	m.connections[distributorID][conn] = true
	m.logger.Infof("Added WebSocket connection for distributor %s (total: %d)", distributorID, len(m.connections[distributorID]))
}

// RemoveConnection removes a WebSocket connection
func (m *WebSocketManager) RemoveConnection(distributorID string, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[distributorID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, distributorID)
		}
		m.logger.Infof("Removed WebSocket connection for distributor %s (remaining: %d)", distributorID, len(conns))
	}
}

// SendToDistributor sends a message to all connections of a distributor.
func (m *WebSocketManager) SendToDistributor(distributorID string, message []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[distributorID]; exists {
		for conn := range conns {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				m.logger.Errorf("Failed to send WebSocket message to distributor %s: %v", distributorID, err)
				delete(conns, conn)
			}
		}
		if len(conns) == 0 {
			delete(m.connections, distributorID)
		}
	}
}
