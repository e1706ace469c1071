package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tank-monitor-service/internal/auth"
	"tank-monitor-service/internal/db"
	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/models"
	"tank-monitor-service/internal/scope"
)

// Store is the persistence surface the handlers read through. *db.DB
// implements it; handler tests substitute a fake.
type Store interface {
	GetConsumerByName(ctx context.Context, name string) (db.Consumer, error)
	CreateConsumer(ctx context.Context, name, passwordHash, role, distributorID string) (db.Consumer, error)
	ListConsumersByDistributor(ctx context.Context, distributorID string) ([]db.Consumer, error)
	GetConsumerScope(ctx context.Context, consumerID string) (string, string, error)
	ListDevices(ctx context.Context, filter models.DeviceFilter, limit, offset int) ([]models.Device, error)
	GetDevice(ctx context.Context, id string) (models.Device, error)
	UpdateDeviceFields(ctx context.Context, id string, patch models.DevicePatch) (models.Device, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
}

// AlertService is the lifecycle surface behind the alert endpoints.
// *alerts.Service implements it.
type AlertService interface {
	CreateManualAlert(ctx context.Context, deviceID, consumerID, distributorID string) (models.Alert, bool, error)
	AutoUpdate(ctx context.Context, deviceID string, measurement float64) (models.Alert, bool, error)
	EvaluateDevices(ctx context.Context, devices []models.Device) error
	ListOpenAlerts(ctx context.Context, distributorID string) ([]models.Alert, error)
	ResolveAlert(ctx context.Context, alertID string) (models.Alert, error)
}

// Pusher registers live dashboard connections. *notification.Service
// implements it.
type Pusher interface {
	AddConnection(distributorID string, conn *websocket.Conn)
	RemoveConnection(distributorID string, conn *websocket.Conn)
}

type Handler struct {
	db       Store
	alerts   AlertService
	notifier Pusher
	auth     *auth.Manager
	logger   *logging.Logger
}

func NewHandler(db Store, alertSvc AlertService, notifier Pusher, authMgr *auth.Manager, logger *logging.Logger) *Handler {
	return &Handler{db: db, alerts: alertSvc, notifier: notifier, auth: authMgr, logger: logger}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// writeErr maps the service error taxonomy onto HTTP statuses.
func (h *Handler) writeErr(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": models.ErrInvalidFilter.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
	case errors.Is(err, models.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": msg})
	}
}

func parseLimitOffset(c *gin.Context, defLimit, maxLimit int) (int, int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

/* ------------------------------ Auth ------------------------------ */

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Missing name or password"})
		return
	}

	consumer, err := h.db.GetConsumerByName(c.Request.Context(), req.Name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Invalid credentials"})
			return
		}
		h.logger.Errorf("Login lookup failed: %v", err)
		h.writeErr(c, err, "Login failed")
		return
	}
	if !auth.CheckPassword(consumer.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Invalid credentials"})
		return
	}

	identity := models.Identity{
		Role:          models.Role(consumer.Role),
		ConsumerID:    consumer.ConsumerID,
		DistributorID: consumer.DistributorID,
		Name:          consumer.Name,
	}
	token, err := h.auth.GenerateToken(identity)
	if err != nil {
		h.logger.Errorf("Token generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"token": token,
		"user": gin.H{
			"consumer_id":    consumer.ConsumerID,
			"name":           consumer.Name,
			"role":           consumer.Role,
			"distributor_id": consumer.DistributorID,
		},
	})
}

func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Name          string `json:"name" binding:"required"`
		Password      string `json:"password" binding:"required"`
		Role          string `json:"role" binding:"required"`
		DistributorID string `json:"distributor_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Missing name, password, or role"})
		return
	}

	if _, err := h.db.GetConsumerByName(c.Request.Context(), req.Name); err == nil {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "Username already exists"})
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		h.logger.Errorf("Register lookup failed: %v", err)
		h.writeErr(c, err, "Registration failed")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Errorf("Password hash failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Registration failed"})
		return
	}

	// New accounts default to the demo distributor, matching the dashboard's
	// registration flow.
	distributorID := req.DistributorID
	if distributorID == "" {
		distributorID = "1"
	}

	consumer, err := h.db.CreateConsumer(c.Request.Context(), req.Name, hash, req.Role, distributorID)
	if err != nil {
		h.logger.Errorf("Register insert failed: %v", err)
		h.writeErr(c, err, "Registration failed")
		return
	}

	h.logger.Infof("Registered consumer %s (%s)", consumer.ConsumerID, consumer.Role)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": gin.H{
		"consumer_id": consumer.ConsumerID,
		"name":        consumer.Name,
		"role":        consumer.Role,
	}})
}

/* ------------------------------ Devices ------------------------------ */

// ListDevices returns the caller-visible device rows as a flat array.
// Admin filter params follow manufacturer > distributor > consumer
// precedence; non-admin callers are pinned to their own scope no matter what
// they pass.
func (h *Handler) ListDevices(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	filter, err := scope.ResolveParams(identity,
		c.Query("manufacturer_id"),
		c.Query("distributor_id"),
		c.Query("consumer_id"),
	)
	if err != nil {
		h.logger.Errorf("Scope resolution failed: %v", err)
		h.writeErr(c, err, "Invalid filter")
		return
	}

	limit, offset := parseLimitOffset(c, 100, 5000)
	devices, err := h.db.ListDevices(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Errorf("List devices failed: %v", err)
		h.writeErr(c, err, "Failed to list devices")
		return
	}

	// Distributor-scoped lists double as the automatic evaluation poll.
	if filter.DistributorID != "" {
		if err := h.alerts.EvaluateDevices(c.Request.Context(), devices); err != nil {
			h.logger.Errorf("Alert evaluation cycle skipped: %v", err)
		}
	}

	h.logger.Infof("Retrieved %d devices for role %s", len(devices), identity.Role)
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) GetDevice(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	id := c.Param("id")
	device, err := h.db.GetDevice(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err, "Failed to get device")
		return
	}

	if !h.deviceVisible(c, identity, device) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, device)
}

// UpdateDevice applies a location/tank_type patch and echoes the changed
// fields only.
func (h *Handler) UpdateDevice(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	id := c.Param("id")
	var patch models.DevicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request body"})
		return
	}

	current, err := h.db.GetDevice(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err, "Failed to get device")
		return
	}
	if !h.deviceVisible(c, identity, current) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
		return
	}

	device, err := h.db.UpdateDeviceFields(c.Request.Context(), id, patch)
	if err != nil {
		h.logger.Errorf("Update device %s failed: %v", id, err)
		h.writeErr(c, err, "Failed to update device")
		return
	}

	h.logger.Infof("Updated device %s", id)
	c.JSON(http.StatusOK, gin.H{"device": gin.H{
		"id":        device.ID,
		"location":  device.Location,
		"tank_type": device.TankType,
	}})
}

// deviceVisible checks a single device against the caller's resolved scope.
func (h *Handler) deviceVisible(c *gin.Context, identity models.Identity, device models.Device) bool {
	filter, err := scope.Resolve(identity, models.FilterNone)
	if err != nil {
		return false
	}
	switch {
	case filter.IsNone():
		return true
	case filter.ConsumerID != "":
		return device.ConsumerID == filter.ConsumerID
	case filter.DistributorID != "":
		if device.ConsumerID == "" {
			return false
		}
		_, distributorID, err := h.db.GetConsumerScope(c.Request.Context(), device.ConsumerID)
		if err != nil {
			return false
		}
		return distributorID == filter.DistributorID
	default:
		return false
	}
}

/* ------------------------------ Consumers ------------------------------ */

func (h *Handler) ListConsumers(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	distributorID := ""
	switch identity.Role {
	case models.RoleDistributor:
		distributorID = identity.DistributorID
	case models.RoleAdmin:
		distributorID = c.Query("distributor_id")
		if distributorID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "distributor_id is required"})
			return
		}
	default:
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "forbidden"})
		return
	}

	consumers, err := h.db.ListConsumersByDistributor(c.Request.Context(), distributorID)
	if err != nil {
		h.logger.Errorf("List consumers failed: %v", err)
		h.writeErr(c, err, "Failed to list consumers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": consumers})
}

/* ------------------------------ Alerts ------------------------------ */

// CreateAlert is the consumer-initiated refill request.
func (h *Handler) CreateAlert(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	var req struct {
		DeviceID      string `json:"deviceId" binding:"required"`
		UserID        string `json:"userId"`
		DistributorID string `json:"distributorId"`
		Timestamp     string `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request body"})
		return
	}

	// Same visibility gate as the device endpoints: a caller cannot flag a
	// device outside their scope.
	device, err := h.db.GetDevice(c.Request.Context(), req.DeviceID)
	if err != nil {
		h.writeErr(c, err, "Failed to create alert")
		return
	}
	if !h.deviceVisible(c, identity, device) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
		return
	}

	// Non-admin callers cannot raise alerts on someone else's behalf.
	consumerID := req.UserID
	distributorID := req.DistributorID
	switch identity.Role {
	case models.RoleUser:
		consumerID = identity.ConsumerID
		distributorID = identity.DistributorID
	case models.RoleDistributor:
		distributorID = identity.DistributorID
	}

	alert, created, err := h.alerts.CreateManualAlert(c.Request.Context(), req.DeviceID, consumerID, distributorID)
	if err != nil {
		h.logger.Errorf("Manual alert for device %s failed: %v", req.DeviceID, err)
		h.writeErr(c, err, "Failed to create alert")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"ok": true, "alert": alert, "created": created})
}

// ListAlerts returns unresolved alerts for a distributor. Only status=0
// (unresolved) is supported, matching the dashboard's query.
func (h *Handler) ListAlerts(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	if status := c.Query("status"); status != "" && status != "0" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "only status=0 is supported"})
		return
	}

	distributorID := ""
	switch identity.Role {
	case models.RoleDistributor:
		distributorID = identity.DistributorID
	case models.RoleAdmin:
		distributorID = c.Query("distributor_id")
		if distributorID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "distributor_id is required"})
			return
		}
	default:
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "forbidden"})
		return
	}

	items, err := h.alerts.ListOpenAlerts(c.Request.Context(), distributorID)
	if err != nil {
		h.logger.Errorf("List alerts for distributor %s failed: %v", distributorID, err)
		h.writeErr(c, err, "Failed to list alerts")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

// ResolveAlert marks an alert resolved. Resolving twice is a recoverable
// no-op: the alert comes back unchanged with 200.
func (h *Handler) ResolveAlert(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}
	if identity.Role != models.RoleDistributor && identity.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "forbidden"})
		return
	}

	id := c.Param("id")

	// Ownership check before any mutation: a distributor can only resolve
	// alerts routed to them.
	if identity.Role == models.RoleDistributor {
		existing, err := h.db.GetAlert(c.Request.Context(), id)
		if err != nil {
			h.writeErr(c, err, "Failed to resolve alert")
			return
		}
		if existing.DistributorID != identity.DistributorID {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
			return
		}
	}

	alert, err := h.alerts.ResolveAlert(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyResolved) {
			c.JSON(http.StatusOK, gin.H{"ok": true, "alert": alert, "already_resolved": true})
			return
		}
		h.logger.Errorf("Resolve alert %s failed: %v", id, err)
		h.writeErr(c, err, "Failed to resolve alert")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "alert": alert})
}

// AlertAction dispatches POST /alerts/:id. The only action living in the
// :id slot is "auto-update"; anything else is an unknown route.
func (h *Handler) AlertAction(c *gin.Context) {
	if c.Param("id") != "auto-update" {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Not found"})
		return
	}
	h.AutoUpdateAlert(c)
}

// AutoUpdateAlert is the HTTP entry to the automatic threshold path.
func (h *Handler) AutoUpdateAlert(c *gin.Context) {
	if _, ok := callerIdentity(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}

	var req struct {
		DeviceID  string  `json:"deviceId" binding:"required"`
		TankLevel float64 `json:"tankLevel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request body"})
		return
	}

	alert, created, err := h.alerts.AutoUpdate(c.Request.Context(), req.DeviceID, req.TankLevel)
	if err != nil {
		h.logger.Errorf("Auto update for device %s failed: %v", req.DeviceID, err)
		h.writeErr(c, err, "Failed to evaluate device")
		return
	}

	if !created {
		c.JSON(http.StatusOK, gin.H{"ok": true, "created": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "created": true, "alert": alert})
}

/* ------------------------------ WebSocket ------------------------------ */

// AlertsWebSocket upgrades a distributor dashboard connection for live alert
// push.
func (h *Handler) AlertsWebSocket(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization required"})
		return
	}
	if identity.Role != models.RoleDistributor {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "forbidden"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	h.notifier.AddConnection(identity.DistributorID, conn)
	defer func() {
		h.notifier.RemoveConnection(identity.DistributorID, conn)
		conn.Close()
	}()

	// Drain client frames until the connection drops; pushes come from the
	// notification service.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
