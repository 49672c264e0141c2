// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package mqtt

import (
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"duskline/internal/api"
	"duskline/internal/broadcast"
	"duskline/internal/store"
)

// Config for the MQTT client.
type Config struct {
	Broker   string `yaml:"broker"`       // tcp://host:1883
	ClientID string `yaml:"client_id"`    // optional, defaults to "duskline"
	Username string `yaml:"username"`     // optional
	Password string `yaml:"password"`     // optional
	Prefix   string `yaml:"topic_prefix"` // topic prefix, defaults to "duskline"
}

// Client is the MQTT bridge: commands in on <prefix>/cmd, broadcast
// events out on <prefix>/event, retained status on <prefix>/status.
type Client struct {
	cfg      *Config
	api      *api.Handler
	pub      *broadcast.Broadcaster
	st       *store.Store
	logger   *slog.Logger
	client   mqtt.Client
	stopChan chan struct{}
}

// NewClient creates a new MQTT client.
func NewClient(cfg *Config, st *store.Store, pub *broadcast.Broadcaster, logger *slog.Logger) *Client {
	if cfg.Prefix == "" {
		cfg.Prefix = "duskline"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "duskline"
	}

	return &Client{
		cfg:      cfg,
		api:      api.NewHandler(st),
		pub:      pub,
		st:       st,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start connects to the broker and subscribes to the command topic.
func (c *Client) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	go c.forwardEvents()

	c.logger.Info("MQTT client started", "broker", c.cfg.Broker, "prefix", c.cfg.Prefix)
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	close(c.stopChan)
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(1000)
	}
	c.logger.Info("MQTT client stopped")
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected")

	cmdTopic := c.cfg.Prefix + "/cmd"
	client.Subscribe(cmdTopic, 1, c.handleCommand)
	c.logger.Debug("MQTT subscribed", "topic", cmdTopic)

	c.publishStatus()
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)
}

func (c *Client) handleCommand(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("MQTT command received", "topic", msg.Topic(), "payload", string(msg.Payload()))

	resp := c.api.HandleJSON(msg.Payload())

	respTopic := c.cfg.Prefix + "/response"
	client.Publish(respTopic, 0, false, resp)
}

// forwardEvents relays the broadcast bus onto the MQTT event topic.
func (c *Client) forwardEvents() {
	subID, events := c.pub.Subscribe()
	defer c.pub.Unsubscribe(subID)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			c.publishEvent(event)
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) publishEvent(event broadcast.Event) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	topic := c.cfg.Prefix + "/event"
	c.client.Publish(topic, 0, false, data)
}

// statusMessage is the retained status payload.
type statusMessage struct {
	Type         string `json:"type"`
	FixtureCount int    `json:"fixture_count"`
	GroupCount   int    `json:"group_count"`
}

func (c *Client) publishStatus() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	cfg := c.st.Config()
	data, _ := json.Marshal(statusMessage{
		Type:         "status",
		FixtureCount: len(cfg.Fixtures),
		GroupCount:   len(cfg.Groups),
	})
	topic := c.cfg.Prefix + "/status"
	c.client.Publish(topic, 0, true, data)
}
