package mqtt

import (
	"testing"

	"presence-gate/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayload(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{"online", "online"},
		{[]byte("raw"), "raw"},
		{42, "42"},
		{12.5, "12.5"},
		{true, "true"},
		{map[string]bool{"present": true}, `{"present":true}`},
	}
	for _, tc := range cases {
		got, err := EncodePayload(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(got))
	}

	_, err := EncodePayload(make(chan int))
	assert.ErrorContains(t, err, "marshal")
}

func TestClient_DisabledAndDisconnected(t *testing.T) {
	c := NewClient(config.MQTTConfig{Enabled: false, Topic: "presence-gate"})
	require.NoError(t, c.Start())

	assert.False(t, c.IsConnected())
	assert.Equal(t, "presence-gate/status", c.AvailabilityTopic())
	assert.Error(t, c.Publish("presence-gate/presence", "on"))
	assert.NotPanics(t, c.Stop)
}
