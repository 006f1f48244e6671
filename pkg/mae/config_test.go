package mae

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/maestream/pkg/models"
)

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{Host: "ems.example.net", Port: 9000}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, time.Duration(cfg.ConnectTimeout))
	assert.Equal(t, 90*time.Second, time.Duration(cfg.IdleTimeout))
	assert.Equal(t, time.Second, time.Duration(cfg.ReconnectBaseDelay))
	assert.Equal(t, 30*time.Second, time.Duration(cfg.ReconnectMaxDelay))
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
	assert.Equal(t, 32*1024, cfg.MaxBufferBytes)
}

func TestConfigValidateKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Host:                 "ems.example.net",
		Port:                 9000,
		ConnectTimeout:       models.Duration(3 * time.Second),
		IdleTimeout:          models.Duration(2 * time.Minute),
		ReconnectBaseDelay:   models.Duration(500 * time.Millisecond),
		ReconnectMaxDelay:    models.Duration(time.Minute),
		MaxReconnectAttempts: 4,
		MaxBufferBytes:       1024,
	}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3*time.Second, time.Duration(cfg.ConnectTimeout))
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.IdleTimeout))
	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.ReconnectBaseDelay))
	assert.Equal(t, time.Minute, time.Duration(cfg.ReconnectMaxDelay))
	assert.Equal(t, 4, cfg.MaxReconnectAttempts)
	assert.Equal(t, 1024, cfg.MaxBufferBytes)
}

func TestConfigValidateRequiresHost(t *testing.T) {
	cfg := &Config{Port: 9000}

	require.ErrorIs(t, cfg.Validate(), ErrHostRequired)
}

func TestConfigValidatePortRange(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		cfg := &Config{Host: "ems.example.net", Port: port}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort, "port %d", port)
	}

	cfg := &Config{Host: "ems.example.net", Port: 65535}
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsHalfCertPair(t *testing.T) {
	cfg := &Config{Host: "ems.example.net", Port: 9000, TLS: TLSSettings{CertFile: "client.pem"}}
	require.ErrorIs(t, cfg.Validate(), ErrMutualTLSIncomplete)

	cfg = &Config{Host: "ems.example.net", Port: 9000, TLS: TLSSettings{KeyFile: "client-key.pem"}}
	require.ErrorIs(t, cfg.Validate(), ErrMutualTLSIncomplete)
}

func TestConfigAddr(t *testing.T) {
	cfg := &Config{Host: "ems.example.net", Port: 9000}
	assert.Equal(t, "ems.example.net:9000", cfg.Addr())

	cfg = &Config{Host: "::1", Port: 9000}
	assert.Equal(t, "[::1]:9000", cfg.Addr())
}

func TestConfigPolicy(t *testing.T) {
	cfg := &Config{
		Host:                 "ems.example.net",
		Port:                 9000,
		ReconnectBaseDelay:   models.Duration(2 * time.Second),
		ReconnectMaxDelay:    models.Duration(20 * time.Second),
		MaxReconnectAttempts: 7,
	}
	require.NoError(t, cfg.Validate())

	p := cfg.Policy()
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, 20*time.Second, p.MaxDelay)
	assert.Equal(t, 7, p.MaxAttempts)
}
