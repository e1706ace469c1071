package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"tank-monitor-service/internal/alerts"
	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/models"
)

// ReadingStore persists incoming readings before evaluation.
type ReadingStore interface {
	UpsertReading(ctx context.Context, r models.Reading) error
}

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Consumer ingests tank level readings and feeds the automatic alert path.
type Consumer struct {
	reader *kafkago.Reader
	store  ReadingStore
	svc    *alerts.Service
	logger *logging.Logger
}

func NewConsumer(cfg Config, store ReadingStore, svc *alerts.Service, logger *logging.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, store: store, svc: svc, logger: logger}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")

		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}

			var reading struct {
				DeviceID    string  `json:"device_id"`
				Measurement float64 `json:"measurement"`
				TankLevel   float64 `json:"tank_level"`
				Timestamp   string  `json:"timestamp"`
			}
			if err := json.Unmarshal(msg.Value, &reading); err != nil {
				c.logger.Errorf("Unmarshal message failed: %v", err)
				continue
			}
			if reading.DeviceID == "" {
				c.logger.Errorf("Invalid message: missing device_id")
				continue
			}

			ts, err := time.Parse(time.RFC3339, reading.Timestamp)
			if err != nil {
				ts = time.Now().UTC()
			}

			if err := c.store.UpsertReading(ctx, models.Reading{
				DeviceID:    reading.DeviceID,
				Measurement: reading.Measurement,
				TankLevelCm: reading.TankLevel,
				Timestamp:   ts,
			}); err != nil {
				c.logger.Errorf("Persist reading for device %s failed: %v", reading.DeviceID, err)
				continue
			}

			if _, created, err := c.svc.AutoUpdate(ctx, reading.DeviceID, reading.Measurement); err != nil {
				c.logger.Errorf("Auto update for device %s failed: %v", reading.DeviceID, err)
			} else if created {
				c.logger.Infof("Processed reading for device %s, alert raised", reading.DeviceID)
			}
		}
	}()
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		return
	}
}
