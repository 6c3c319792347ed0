package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KAFKA_NOTIFICATION_DLQ_TOPIC", "alerts")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	require.True(t, cfg.Enabled)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	require.Equal(t, "alerts", cfg.NotificationDLQTopic)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled skips checks", cfg: Config{}, wantErr: false},
		{name: "enabled without brokers", cfg: Config{Enabled: true, NotificationDLQTopic: "t"}, wantErr: true},
		{name: "enabled with blank broker", cfg: Config{Enabled: true, Brokers: []string{" "}, NotificationDLQTopic: "t"}, wantErr: true},
		{name: "enabled without topic", cfg: Config{Enabled: true, Brokers: []string{"k:9092"}}, wantErr: true},
		{name: "valid", cfg: Config{Enabled: true, Brokers: []string{"k:9092"}, NotificationDLQTopic: "t"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
