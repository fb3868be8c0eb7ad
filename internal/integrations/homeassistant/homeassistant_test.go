package homeassistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"presence-gate/config"
	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload interface{}
	retain  bool
}

type fakeMQTT struct {
	mu   sync.Mutex
	msgs []published
	fail string
}

func (f *fakeMQTT) record(topic string, payload interface{}, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != "" && strings.Contains(topic, f.fail) {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, published{topic, payload, retain})
	return nil
}

func (f *fakeMQTT) Publish(topic string, payload interface{}) error {
	return f.record(topic, payload, false)
}

func (f *fakeMQTT) PublishRetain(topic string, payload interface{}) error {
	return f.record(topic, payload, true)
}

func (f *fakeMQTT) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

var mqttCfg = config.MQTTConfig{
	Topic:         "presence-gate",
	HomeAssistant: config.HomeAssistantConfig{Enabled: true, DiscoveryPrefix: "ha", PublishResults: true},
}

func TestDiscovery_RegistersEntitiesAndAvailability(t *testing.T) {
	fake := &fakeMQTT{}
	dm := NewDiscoveryManager(fake, mqttCfg, "1.2.3")

	require.NoError(t, dm.Register())

	msgs := fake.snapshot()
	require.Len(t, msgs, 6)
	assert.Equal(t, "ha/binary_sensor/presence_gate/presence/config", msgs[0].topic)
	assert.True(t, msgs[0].retain)

	presence, ok := msgs[0].payload.(EntityConfig)
	require.True(t, ok)
	assert.Equal(t, "presence-gate/presence", presence.StateTopic)
	assert.Equal(t, "presence-gate/status", presence.AvailabilityTopic)
	assert.Equal(t, "1.2.3", presence.Device.SWVersion)

	last := msgs[len(msgs)-1]
	assert.Equal(t, "presence-gate/status", last.topic)
	assert.Equal(t, "online", last.payload)
}

func TestDiscovery_ReportsFailures(t *testing.T) {
	fake := &fakeMQTT{fail: "/fps/"}
	dm := NewDiscoveryManager(fake, mqttCfg, "dev")

	err := dm.Register()
	assert.ErrorContains(t, err, "1 Home Assistant entities")
}

func TestPublisher_QueuesPresenceCommitAndStats(t *testing.T) {
	fake := &fakeMQTT{}
	p := NewPublisher(fake, mqttCfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.OnPresenceChanged(processor.Status{Present: true, FaceStable: true, FacesCount: 1, Indicator: processor.IndicatorGreen})
	p.OnCommit(processor.CommitResult{ID: "c1", Decision: models.GateDecision{Accepted: true}})
	p.PublishStats(processor.Status{FPS: 14.5, Cycles: 30})

	assert.Eventually(t, func() bool { return len(fake.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	msgs := fake.snapshot()

	assert.Equal(t, "presence-gate/presence", msgs[0].topic)
	assert.True(t, msgs[0].retain)
	state := msgs[0].payload.(PresenceState)
	assert.True(t, state.Present)
	assert.Equal(t, processor.IndicatorGreen, state.Indicator)

	assert.Equal(t, "presence-gate/commit", msgs[1].topic)
	assert.Equal(t, "c1", msgs[1].payload.(CommitEvent).ID)

	assert.Equal(t, "presence-gate/stats", msgs[2].topic)
	assert.InDelta(t, 14.5, msgs[2].payload.(StatsState).FPS, 1e-9)
}

func TestPublisher_CommitResultsCanBeDisabled(t *testing.T) {
	fake := &fakeMQTT{}
	cfg := mqttCfg
	cfg.HomeAssistant.PublishResults = false
	p := NewPublisher(fake, cfg)

	p.OnCommit(processor.CommitResult{ID: "c1"})
	assert.Len(t, p.queue, 0)
}

func TestPublisher_FullQueueDrops(t *testing.T) {
	p := NewPublisher(&fakeMQTT{}, mqttCfg)
	for i := 0; i < cap(p.queue)+10; i++ {
		p.PublishStats(processor.Status{})
	}
	assert.Len(t, p.queue, cap(p.queue))
}
