package homeassistant

import (
	"context"
	"time"

	"presence-gate/config"
	"presence-gate/internal/core/processor"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "homeassistant",
}

// PresenceState wird retained auf <topic>/presence veröffentlicht
type PresenceState struct {
	Present    bool                `json:"present"`
	FaceStable bool                `json:"face_stable"`
	PoseStable bool                `json:"pose_stable"`
	FacesCount int                 `json:"faces_count"`
	Landmarks  int                 `json:"pose_landmarks"`
	Indicator  processor.Indicator `json:"indicator"`
	Paused     bool                `json:"paused"`
	Timestamp  time.Time           `json:"timestamp"`
}

// StatsState wird periodisch auf <topic>/stats veröffentlicht
type StatsState struct {
	FPS           float64 `json:"fps"`
	LastLatencyMs int64   `json:"last_latency_ms"`
	Cycles        uint64  `json:"cycles"`
	Dropped       uint64  `json:"dropped"`
}

// CommitEvent wird auf <topic>/commit veröffentlicht
type CommitEvent struct {
	ID         string    `json:"id"`
	Accepted   bool      `json:"accepted"`
	Compared   bool      `json:"compared"`
	Similarity float64   `json:"similarity"`
	NoFrame    bool      `json:"no_frame"`
	FrameSeq   uint64    `json:"frame_seq"`
	Timestamp  time.Time `json:"timestamp"`
}

type outbound struct {
	topic   string
	payload interface{}
	retain  bool
}

// Publisher veröffentlicht Pipeline-Ereignisse via MQTT. Ereignisse werden in
// eine Queue gestellt und von Run der Reihe nach gesendet, damit der
// Analyse-Worker nie auf den Broker wartet.
type Publisher struct {
	mqttClient     MQTTPublisher
	baseTopic      string
	publishResults bool
	queue          chan outbound
}

// NewPublisher erstellt einen neuen MQTT-Publisher für Home Assistant
func NewPublisher(mqttClient MQTTPublisher, cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		mqttClient:     mqttClient,
		baseTopic:      cfg.Topic,
		publishResults: cfg.HomeAssistant.PublishResults,
		queue:          make(chan outbound, 64),
	}
}

// Run sendet die Queue, bis ctx beendet wird
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			var err error
			if msg.retain {
				err = p.mqttClient.PublishRetain(msg.topic, msg.payload)
			} else {
				err = p.mqttClient.Publish(msg.topic, msg.payload)
			}
			if err != nil {
				log.WithFields(logFields).Warnf("Failed to publish to %s: %v", msg.topic, err)
			}
		}
	}
}

func (p *Publisher) enqueue(msg outbound) {
	select {
	case p.queue <- msg:
	default:
		log.WithFields(logFields).Warnf("MQTT queue full, dropping message for %s", msg.topic)
	}
}

// OnPresenceChanged veröffentlicht den neuen Anwesenheitszustand (retained)
func (p *Publisher) OnPresenceChanged(status processor.Status) {
	p.enqueue(outbound{topic: p.baseTopic + "/presence", payload: presenceState(status), retain: true})
}

// OnCommit veröffentlicht das Commit-Urteil
func (p *Publisher) OnCommit(res processor.CommitResult) {
	if !p.publishResults {
		return
	}
	p.enqueue(outbound{topic: p.baseTopic + "/commit", payload: CommitEvent{
		ID:         res.ID,
		Accepted:   res.Decision.Accepted,
		Compared:   res.Decision.Compared,
		Similarity: res.Decision.Similarity,
		NoFrame:    res.NoFrame,
		FrameSeq:   res.FrameSeq,
		Timestamp:  res.At,
	}})
}

// StartStatsTicker veröffentlicht regelmäßig FPS und Latenz
func (p *Publisher) StartStatsTicker(ctx context.Context, interval time.Duration, source func() processor.Status) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.PublishStats(source())
			}
		}
	}()
}

// PublishStats stellt einen Statistik-Snapshot in die Queue
func (p *Publisher) PublishStats(s processor.Status) {
	p.enqueue(outbound{topic: p.baseTopic + "/stats", payload: StatsState{
		FPS:           s.FPS,
		LastLatencyMs: s.LastLatencyMs,
		Cycles:        s.Cycles,
		Dropped:       s.Dropped,
	}})
}

func presenceState(s processor.Status) PresenceState {
	return PresenceState{
		Present:    s.Present,
		FaceStable: s.FaceStable,
		PoseStable: s.PoseStable,
		FacesCount: s.FacesCount,
		Landmarks:  s.PoseLandmarkCount,
		Indicator:  s.Indicator,
		Paused:     s.Paused,
		Timestamp:  s.UpdatedAt,
	}
}
