// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kramdoss/manila/internal/conf"
)

type Client interface {
	Connect() error
	Publish(topic string, obj any)
	Disconnect()
	Subscribe(topic string, callback mqtt.MessageHandler) error
}

type client struct {
	conf conf.MQTTConfig
	// Monitor for connections and published messages.
	monitor Monitor
	// MQTT client to publish and receive mqtt data.
	client mqtt.Client
	// Subscriptions to restore when the connection was lost.
	subscriptions map[string]mqtt.MessageHandler
	// Lock to prevent concurrent writes to the MQTT client.
	lock *sync.Mutex
}

func NewClient(config conf.MQTTConfig, monitor Monitor) Client {
	return &client{
		conf:          config,
		monitor:       monitor,
		subscriptions: make(map[string]mqtt.MessageHandler),
		lock:          &sync.Mutex{},
	}
}

// Called when the connection to the mqtt broker is lost.
// Paho reconnects by itself, subscriptions are restored in onConnect.
func (t *client) onConnectionLost(_ mqtt.Client, err error) {
	t.monitor.observeConnectionLost()
	slog.Error("lost connection to mqtt broker", "error", err)
}

// Called on every (re)connect to the broker.
func (t *client) onConnect(c mqtt.Client) {
	t.monitor.observeConnection()
	t.lock.Lock()
	defer t.lock.Unlock()
	for topic, callback := range t.subscriptions {
		token := c.Subscribe(topic, 2, callback)
		if token.Wait() && token.Error() != nil {
			slog.Error("failed to restore subscription", "topic", topic, "err", token.Error())
		}
	}
}

// Connect to the mqtt broker.
func (t *client) Connect() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.connect()
}

func (t *client) connect() error {
	if t.client != nil {
		return nil
	}

	slog.Info("connecting to mqtt broker at", "url", t.conf.URL)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.conf.URL)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	opts.SetOnConnectHandler(t.onConnect)
	//nolint:gosec // We don't care if the client id is cryptographically secure.
	opts.SetClientID(fmt.Sprintf("manila-scheduler-%d", rand.Intn(1_000_000)))
	opts.SetOrderMatters(false)
	opts.SetProtocolVersion(4)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		slog.Warn("received unexpected message on topic", "topic", msg.Topic())
	})
	opts.SetUsername(t.conf.Username)
	opts.SetPassword(t.conf.Password)

	c := mqtt.NewClient(opts)
	if conn := c.Connect(); conn.Wait() && conn.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", conn.Error())
	}
	t.client = c
	slog.Info("connected to mqtt broker")
	return nil
}

// Publish mqtt data to the mqtt broker.
// In case of errors, log them out and return.
func (t *client) Publish(topic string, obj any) {
	err := t.publish(topic, obj)
	t.monitor.observePublish(topic, err)
	if err != nil {
		slog.Error("failed to publish mqtt data", "topic", topic, "err", err)
		return
	}
	slog.Debug("published mqtt data", "topic", topic)
}

func (t *client) publish(topic string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	// Connect if we aren't already.
	if err := t.connect(); err != nil {
		return err
	}
	pub := t.client.Publish(topic, 2, false, data)
	if pub.Wait() && pub.Error() != nil {
		return pub.Error()
	}
	return nil
}

// Subscribe to a topic on the mqtt broker.
func (t *client) Subscribe(topic string, callback mqtt.MessageHandler) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	// Connect if we aren't already.
	if err := t.connect(); err != nil {
		return err
	}
	token := t.client.Subscribe(topic, 2, callback)
	if token.Wait() && token.Error() != nil {
		slog.Error("failed to subscribe to topic", "topic", topic, "err", token.Error())
		return token.Error()
	}
	t.subscriptions[topic] = callback
	slog.Info("subscribed to topic", "topic", topic)
	return nil
}

// Disconnect from the mqtt broker.
func (t *client) Disconnect() {
	t.lock.Lock()
	c := t.client
	t.client = nil
	clear(t.subscriptions)
	t.lock.Unlock()
	if c == nil {
		return
	}
	c.Disconnect(1000)
	slog.Info("disconnected from mqtt broker")
}
