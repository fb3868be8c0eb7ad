package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"presence-gate/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

var logFields = log.Fields{
	"component": "mqtt",
}

// Client ist der MQTT-Client, über den die Pipeline ihren Zustand veröffentlicht
type Client struct {
	config config.MQTTConfig
	client mqtt.Client

	mu        sync.Mutex
	onConnect []func()
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// AvailabilityTopic ist das Topic für den Online-Status (auch Last Will)
func (c *Client) AvailabilityTopic() string {
	return c.config.Topic + "/status"
}

// OnConnect registriert einen Callback, der nach jedem (Wieder-)Verbinden läuft
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// Start verbindet den Client mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.WithFields(logFields).Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Broker meldet "offline", wenn die Verbindung abreißt
	opts.SetWill(c.AvailabilityTopic(), "offline", 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.WithFields(logFields).Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.WithFields(logFields).Info("MQTT client connected successfully")
	return nil
}

// Stop meldet "offline" und trennt die Verbindung
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		if err := c.PublishRetain(c.AvailabilityTopic(), "offline"); err != nil {
			log.WithFields(logFields).Warnf("Failed to publish offline status: %v", err)
		}
		c.client.Disconnect(250)
		log.WithFields(logFields).Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) onConnectHandler(_ mqtt.Client) {
	log.WithFields(logFields).Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	c.mu.Lock()
	callbacks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	// paho ruft den Handler in einer eigenen Goroutine auf; Publish darf hier warten
	for _, fn := range callbacks {
		fn()
	}
}

func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.WithFields(logFields).Errorf("MQTT connection lost: %v", err)
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.WithFields(logFields).Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}

// EncodePayload wandelt Strings, Bytes und Zahlen direkt um, alles andere als JSON
func EncodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
		return b, nil
	}
}
