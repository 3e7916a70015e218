// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite3
  url: file:test.db
redis:
  url: redis://localhost:6379/0
`)

	c, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, c.Quota.FreeUses)
	assert.Equal(t, int64(200), c.Payment.AmountCents)
	assert.Equal(t, "usd", c.Payment.Currency)
	assert.Equal(t, "Premium Access", c.Payment.ProductName)
	assert.Equal(t, 15*time.Second, c.Payment.Timeout)
	assert.Equal(t, 10*time.Second, c.ImageSearch.Timeout)
	assert.Equal(t, "local", c.Storage.Backend)
	assert.Equal(t, "0.0.0.0:8080", c.Server.Address())
	assert.True(t, c.IsDevelopment())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite3
  url: file:test.db
redis:
  url: redis://localhost:6379/0
quota:
  free_uses: 3
`)
	t.Setenv("FREE_QUOTA", "7")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	c, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, c.Quota.FreeUses)
	assert.Equal(t, "whsec_test", c.Payment.WebhookSecret)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing database url",
			body: "redis:\n  url: redis://x\n",
		},
		{
			name: "unknown driver",
			body: "database:\n  driver: mysql\n  url: x\nredis:\n  url: redis://x\n",
		},
		{
			name: "negative quota",
			body: "database:\n  driver: sqlite3\n  url: x\nredis:\n  url: redis://x\nquota:\n  free_uses: -1\n",
		},
		{
			name: "s3 without bucket",
			body: "database:\n  driver: sqlite3\n  url: x\nredis:\n  url: redis://x\nstorage:\n  backend: s3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
