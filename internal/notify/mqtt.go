// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package notify publishes probe progress to an MQTT broker so that other
// consumers can follow a run without polling the HTTP API.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/probe"
)

// DefaultTopicPrefix is used when MQTTConfig.TopicPrefix is empty.
const DefaultTopicPrefix = "actionprobe"

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("notify: mqtt operation timed out")

// MQTTConfig configures the publisher.
type MQTTConfig struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// MQTTPublisher implements probe.Reporter by publishing every snapshot,
// retained, to {prefix}/probe/{runId}.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("notify: mqtt broker URL is required")
	}
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "actionprobe-" + uuid.New().String()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: connect %s: %w", cfg.Broker, err)
	}

	logger := xglog.WithComponent("notify")
	logger.Info().
		Str(xglog.FieldEvent, "notify.connected").
		Str("broker", cfg.Broker).
		Str("prefix", prefix).
		Msg("mqtt publisher connected")

	return &MQTTPublisher{
		client:  client,
		prefix:  prefix,
		qos:     cfg.QoS,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Topic returns the topic of a run.
func (p *MQTTPublisher) Topic(runID string) string {
	return p.prefix + "/probe/" + runID
}

// Publish sends one snapshot and waits for the broker acknowledgement.
func (p *MQTTPublisher) Publish(s probe.Snapshot) error {
	if s.RunID == "" {
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("notify: encode snapshot: %w", err)
	}
	token := p.client.Publish(p.Topic(s.RunID), p.qos, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// UpdateProbeSnapshot implements probe.Reporter. Failures are logged and
// never interrupt the run.
func (p *MQTTPublisher) UpdateProbeSnapshot(s probe.Snapshot) {
	if err := p.Publish(s); err != nil {
		p.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "notify.publish_failed").
			Str(xglog.FieldRunID, s.RunID).
			Msg("failed to publish probe snapshot")
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
