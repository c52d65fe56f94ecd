// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"encoding/json"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message published through the mock client.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

// Mock mqtt client that records published messages and lets tests
// deliver messages to subscribers.
type MockClient struct {
	mu            sync.Mutex
	Published     []PublishedMessage
	subscriptions map[string]pahomqtt.MessageHandler
}

func (m *MockClient) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishedMessage{Topic: topic, Payload: data})
}

func (m *MockClient) Connect() error {
	return nil
}

func (m *MockClient) Disconnect() {
	// Do nothing
}

func (m *MockClient) Subscribe(topic string, callback pahomqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscriptions == nil {
		m.subscriptions = make(map[string]pahomqtt.MessageHandler)
	}
	m.subscriptions[topic] = callback
	return nil
}

// Get a copy of all messages published so far.
func (m *MockClient) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.Published...)
}

// Deliver a payload to the subscriber of the topic, as if it came from the broker.
// Returns false if nobody subscribed to the topic.
func (m *MockClient) Deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	callback, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if !ok {
		return false
	}
	callback(nil, &message{topic: topic, payload: payload})
	return true
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 2 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
