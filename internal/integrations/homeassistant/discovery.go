package homeassistant

import (
	"fmt"

	"presence-gate/config"

	log "github.com/sirupsen/logrus"
)

// Konstanten für Home Assistant MQTT Discovery
const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"

	// Node-ID für presence-gate
	NodeID = "presence_gate"
)

// MQTTPublisher ist der Teil des MQTT-Clients, den die Integration benötigt
type MQTTPublisher interface {
	Publish(topic string, payload interface{}) error
	PublishRetain(topic string, payload interface{}) error
}

// EntityConfig repräsentiert die MQTT-Discovery-Konfiguration einer Entität
type EntityConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	DeviceClass         string  `json:"device_class,omitempty"`
	Icon                string  `json:"icon,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	UnitOfMeasurement   string  `json:"unit_of_measurement,omitempty"`
	PayloadOn           string  `json:"payload_on,omitempty"`
	PayloadOff          string  `json:"payload_off,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type entity struct {
	component string
	objectID  string
	config    EntityConfig
}

// DiscoveryManager verwaltet die Home Assistant MQTT Discovery
type DiscoveryManager struct {
	mqttClient MQTTPublisher
	prefix     string
	baseTopic  string
	version    string
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(mqttClient MQTTPublisher, cfg config.MQTTConfig, version string) *DiscoveryManager {
	prefix := cfg.HomeAssistant.DiscoveryPrefix
	if prefix == "" {
		prefix = "homeassistant"
	}
	return &DiscoveryManager{
		mqttClient: mqttClient,
		prefix:     prefix,
		baseTopic:  cfg.Topic,
		version:    version,
	}
}

func (dm *DiscoveryManager) entities() []entity {
	device := &Device{
		Identifiers:  []string{NodeID},
		Name:         "Presence Gate",
		Manufacturer: "presence-gate",
		Model:        "Camera presence gate",
		SWVersion:    dm.version,
	}
	avail := func(c EntityConfig) EntityConfig {
		c.AvailabilityTopic = dm.baseTopic + "/status"
		c.PayloadAvailable = "online"
		c.PayloadNotAvailable = "offline"
		c.Device = device
		return c
	}
	presenceTopic := dm.baseTopic + "/presence"

	return []entity{
		{ComponentBinarySensor, "presence", avail(EntityConfig{
			Name:                "Presence",
			UniqueID:            NodeID + "_presence",
			StateTopic:          presenceTopic,
			DeviceClass:         "occupancy",
			ValueTemplate:       "{{ 'ON' if value_json.present else 'OFF' }}",
			PayloadOn:           "ON",
			PayloadOff:          "OFF",
			JSONAttributesTopic: presenceTopic,
		})},
		{ComponentBinarySensor, "face", avail(EntityConfig{
			Name:          "Face",
			UniqueID:      NodeID + "_face",
			StateTopic:    presenceTopic,
			Icon:          "mdi:face-recognition",
			ValueTemplate: "{{ 'ON' if value_json.face_stable else 'OFF' }}",
			PayloadOn:     "ON",
			PayloadOff:    "OFF",
		})},
		{ComponentBinarySensor, "pose", avail(EntityConfig{
			Name:          "Pose",
			UniqueID:      NodeID + "_pose",
			StateTopic:    presenceTopic,
			Icon:          "mdi:human",
			ValueTemplate: "{{ 'ON' if value_json.pose_stable else 'OFF' }}",
			PayloadOn:     "ON",
			PayloadOff:    "OFF",
		})},
		{ComponentSensor, "fps", avail(EntityConfig{
			Name:              "Analysis FPS",
			UniqueID:          NodeID + "_fps",
			StateTopic:        dm.baseTopic + "/stats",
			Icon:              "mdi:speedometer",
			ValueTemplate:     "{{ value_json.fps | round(1) }}",
			UnitOfMeasurement: "fps",
		})},
		{ComponentSensor, "last_commit", avail(EntityConfig{
			Name:                "Last commit",
			UniqueID:            NodeID + "_last_commit",
			StateTopic:          dm.baseTopic + "/commit",
			Icon:                "mdi:image-filter-center-focus",
			ValueTemplate:       "{{ 'accept' if value_json.accepted else 'skip' }}",
			JSONAttributesTopic: dm.baseTopic + "/commit",
		})},
	}
}

// Register veröffentlicht die Discovery-Konfiguration aller Entitäten und
// meldet den Dienst als online.
func (dm *DiscoveryManager) Register() error {
	var failed int
	for _, e := range dm.entities() {
		topic := fmt.Sprintf("%s/%s/%s/%s/config", dm.prefix, e.component, NodeID, e.objectID)
		if err := dm.mqttClient.PublishRetain(topic, e.config); err != nil {
			log.Errorf("Failed to register Home Assistant entity %s: %v", e.objectID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to register %d Home Assistant entities", failed)
	}
	log.Info("Home Assistant discovery published")
	return dm.PublishAvailability(true)
}

// PublishAvailability veröffentlicht den Online-Status
func (dm *DiscoveryManager) PublishAvailability(online bool) error {
	status := "offline"
	if online {
		status = "online"
	}
	return dm.mqttClient.PublishRetain(dm.baseTopic+"/status", status)
}
