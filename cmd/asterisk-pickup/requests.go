package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/config"
	"github.com/sweeney/asterisk-pickup/internal/pickup"
	"github.com/sweeney/asterisk-pickup/internal/publisher"
)

var (
	errNotConnected     = errors.New("not connected to asterisk")
	errUnknownRequester = errors.New("requesting channel not found")
)

// pickupRequest is the JSON body of a message on the request topic.
type pickupRequest struct {
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel"`
	Targets string `json:"targets"`
}

// pickupResult is published on the result topic. Status is "ok" whenever
// the pickup ran to completion, whether or not anything was picked up.
type pickupResult struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Report    pickup.Report `json:"report"`
	Timestamp string        `json:"timestamp"`
}

// requestServer turns MQTT pickup requests into Driver.Pickup calls.
type requestServer struct {
	pub    publisher.Publisher
	mqtt   config.MQTTConfig
	logger *slog.Logger
	clock  func() time.Time

	mu     sync.RWMutex
	reg    *channel.Registry
	driver *pickup.Driver
}

func newRequestServer(pub publisher.Publisher, cfg config.MQTTConfig, logger *slog.Logger) *requestServer {
	return &requestServer{
		pub:    pub,
		mqtt:   cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// attach sets the registry and driver of the current AMI session. Both are
// nil while AMI is down.
func (s *requestServer) attach(reg *channel.Registry, d *pickup.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg
	s.driver = d
}

func (s *requestServer) current() (*channel.Registry, *pickup.Driver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg, s.driver
}

func (s *requestServer) subscribe(ctx context.Context) error {
	topic := s.mqtt.RequestTopic()
	err := s.pub.Subscribe(ctx, topic, func(_ string, payload []byte) {
		s.handle(ctx, payload)
	})
	if err != nil {
		return err
	}
	s.logger.Info("listening for pickup requests", "topic", topic)
	return nil
}

func (s *requestServer) handle(ctx context.Context, payload []byte) {
	var req pickupRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("discarding malformed pickup request", "error", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	result := pickupResult{ID: req.ID, Status: "ok"}
	report, err := s.run(ctx, req)
	result.Report = report
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
	}

	if err := s.publish(ctx, result); err != nil {
		s.logger.Error("publish error", "request", req.ID, "error", err)
	}
}

func (s *requestServer) run(ctx context.Context, req pickupRequest) (pickup.Report, error) {
	report := pickup.Report{Requester: req.Channel, Request: req.Targets}

	reg, d := s.current()
	if d == nil {
		return report, errNotConnected
	}

	requester := reg.GetByName(req.Channel)
	if requester == nil {
		requester = reg.Get(req.Channel)
	}
	if requester == nil {
		return report, fmt.Errorf("%w: %s", errUnknownRequester, req.Channel)
	}

	s.logger.Info("pickup requested", "request", req.ID, "channel", req.Channel, "targets", req.Targets)
	return d.Pickup(ctx, requester, req.Targets)
}

func (s *requestServer) publish(ctx context.Context, result pickupResult) error {
	result.Timestamp = s.clock().UTC().Format(time.RFC3339)
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return s.pub.Publish(ctx, s.mqtt.ResultTopic(result.ID), data)
}
