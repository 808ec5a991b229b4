package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViperFromBytes(t *testing.T) {
	// Arrange
	raw := []byte(`
modules:
  admin:
    otp:
      ttl_minutes: 10
      resend_cooldown_seconds: 30
    consumer_names: " nats , ,nsq"
    audiences:
      - admin
      - " audit "
    empty: ""
    secret: "c2VjcmV0"
    broken_secret: "%%%"
`)

	// Act
	cfg, err := NewViperFromBytes("yaml", raw)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.GetMinute("modules.admin.otp.ttl_minutes"))
	assert.Equal(t, 30*time.Second, cfg.GetSecond("modules.admin.otp.resend_cooldown_seconds"))
	assert.Equal(t, []string{"nats", "nsq"}, cfg.GetArray("modules.admin.consumer_names"))
	assert.Equal(t, []string{"admin", "audit"}, cfg.GetArray("modules.admin.audiences"))
	assert.Nil(t, cfg.GetArray("modules.admin.empty"))
	assert.Nil(t, cfg.GetArray("modules.admin.missing"))
	assert.Equal(t, []byte("secret"), cfg.GetBinary("modules.admin.secret"))
	assert.Nil(t, cfg.GetBinary("modules.admin.broken_secret"))
	assert.NoError(t, cfg.Close())
}

func TestViperFromBytesRequiresType(t *testing.T) {
	_, err := NewViperFromBytes(" ", nil)
	assert.Error(t, err)
}

func TestViperEnvOverride(t *testing.T) {
	t.Setenv("STEPGUARD_JWT_ISSUER", "from-env")

	cfg, err := NewViperFromBytes("yaml", []byte("jwt:\n  issuer: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.GetString("jwt.issuer"))
}

func TestNewViperReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: stepguard\n"), 0o600))

	cfg, err := NewViper(path)

	require.NoError(t, err)
	assert.Equal(t, "stepguard", cfg.GetString("app.name"))
}
