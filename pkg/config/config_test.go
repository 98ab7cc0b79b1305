package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
auth:
  jwt_secret: 0123456789abcdef
store:
  backend: memory
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, ModeAll, c.App.Mode)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 3, c.Queue.MaxAttempts)
	assert.Equal(t, 60*time.Second, c.Queue.LeaseTimeout)
	assert.Equal(t, 20*time.Second, c.Engine.Timeout)
	assert.Equal(t, 30*time.Second, c.Realtime.HeartbeatInterval)
	assert.Equal(t, "store", c.Audit.Backend)
	assert.True(t, c.ServesAPI())
	assert.True(t, c.RunsWorkers())
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse([]byte(`
app:
  mode: worker
auth:
  jwt_secret: 0123456789abcdef
store:
  backend: postgres
  dsn: postgres://aegis@localhost/aegis
  accounts:
    - id: a1
      user_id: u1
queue:
  max_attempts: 5
realtime:
  heartbeat_interval: 5s
`))
	require.NoError(t, err)

	assert.False(t, c.ServesAPI())
	assert.True(t, c.RunsWorkers())
	assert.Equal(t, 5, c.Queue.MaxAttempts)
	assert.Equal(t, 5*time.Second, c.Realtime.HeartbeatInterval)
	require.Len(t, c.Store.Accounts, 1)
	assert.Equal(t, "u1", c.Store.Accounts[0].UserID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad mode", "app: {mode: both}\nstore: {backend: memory}", "app.mode"},
		{"postgres without dsn", "store: {backend: postgres}", "store.dsn"},
		{"unknown store", "store: {backend: mongo}", "store.backend"},
		{"unknown audit", "store: {backend: memory}\naudit: {backend: s3}", "audit.backend"},
		{"zero attempts", "store: {backend: memory}\nqueue: {max_attempts: 0}", "queue.max_attempts"},
		{"lease shorter than engine", "store: {backend: memory}\nqueue: {lease_timeout: 10s}", "lease_timeout"},
		{"kafka without brokers", "store: {backend: memory}\nkafka: {enabled: true}", "kafka.brokers"},
		{"account without user", "store: {backend: memory, accounts: [{id: a1}]}", "store.accounts[0]"},
		{"memory store in api role", "app: {mode: api}\nstore: {backend: memory}", "requires app.mode 'all'"},
		{"memory store in worker role", "app: {mode: worker}\nstore: {backend: memory}", "requires app.mode 'all'"},
		{"missing jwt secret", "store: {backend: memory}", "auth.jwt_secret"},
		{"short jwt secret", "auth: {jwt_secret: short}\nstore: {backend: memory}", "auth.jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: postgres\n"), 0o600))

	t.Setenv("APP_MODE", "api")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://aegis@localhost/aegis")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("JWT_SECRET", "s3cret-s3cret-s3cret")
	t.Setenv("QUEUE_WORKERS", "lots")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, ModeAPI, c.App.Mode)
	assert.Equal(t, 9090, c.Server.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "s3cret-s3cret-s3cret", c.Auth.JWTSecret)
	assert.Equal(t, "postgres://aegis@localhost/aegis", c.Store.DSN)
	assert.Equal(t, 4, c.Queue.Workers, "unparseable override keeps the file value")
}

func TestRealtimeGroupIDIsPerInstance(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	c.Kafka.Consumer.InstanceID = "api-1"
	assert.Equal(t, "aegis-realtime-api-1", c.RealtimeGroupID())

	c.Kafka.Consumer.InstanceID = "api-2"
	assert.NotEqual(t, "aegis-realtime-api-1", c.RealtimeGroupID())

	c.Kafka.Consumer.InstanceID = ""
	gid := c.RealtimeGroupID()
	assert.True(t, strings.HasPrefix(gid, "aegis-realtime-"), gid)
	assert.True(t, strings.HasSuffix(gid, fmt.Sprintf("-%d", os.Getpid())), gid)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
