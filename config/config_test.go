package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sandbox points every directory the loader creates into a temp dir.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PRESENCE_GATE_SERVER_DATA_DIR", dir)
	t.Setenv("PRESENCE_GATE_LOG_FILE", filepath.Join(dir, "logs", "pg.log"))
	t.Setenv("PRESENCE_GATE_DB_FILE", filepath.Join(dir, "db", "pg.db"))
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	dir := sandbox(t)

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pipeline.FaceValidThreshold)
	assert.Equal(t, 3, cfg.Pipeline.PoseInvalidThreshold)
	assert.InDelta(t, 0.919, cfg.Pipeline.SimilarityThreshold, 1e-9)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.MaxAdmittedAge)
	assert.True(t, cfg.Pipeline.CommitRequiresPresence)
	assert.Equal(t, "dnn", cfg.OpenCV.Pose.Method)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.Equal(t, 30, cfg.Cleanup.RetentionDays)

	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := sandbox(t)
	path := writeConfig(t, dir, `
server:
  port: 8080
pipeline:
  face_valid_threshold: 5
  max_admitted_age: 2s
  similarity_threshold: 0.95
mqtt:
  enabled: true
  broker: broker.local
`)
	t.Setenv("PRESENCE_GATE_PIPELINE_SIMILARITY_THRESHOLD", "0.8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pipeline.FaceValidThreshold)
	assert.Equal(t, 3, cfg.Pipeline.FaceInvalidThreshold)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.MaxAdmittedAge)
	assert.InDelta(t, 0.8, cfg.Pipeline.SimilarityThreshold, 1e-9)
	assert.Equal(t, "broker.local", cfg.MQTT.Broker)
	assert.Equal(t, 1883, cfg.MQTT.Port)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := sandbox(t)
	path := writeConfig(t, dir, `
pipeline:
  similarity_threshold: 1.5
  pose_valid_threshold: 0
mqtt:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")
	assert.Contains(t, err.Error(), "pose_valid_threshold")
	assert.Contains(t, err.Error(), "mqtt.broker")
}

func TestLoad_BrokenFile(t *testing.T) {
	dir := sandbox(t)
	path := writeConfig(t, dir, "server: [unclosed")

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to read config file")
}
