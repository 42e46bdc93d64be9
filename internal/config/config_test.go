package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "memory")

	cfg := LoadAPI()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 8, cfg.DispatchConcurrency)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "500ms", cfg.RetryBackoff.String())
	assert.Equal(t, "emailapi", cfg.MailerKind)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
}

func TestLoadAPIPanicsOnInvalidEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")
	assert.Panics(t, func() { LoadAPI() })
}

func TestValidate(t *testing.T) {
	base := APIConfig{
		StoreDriver:   "memory",
		MailerKind:    "emailapi",
		EmailAPIURL:   "http://x",
		StoreTimeout:  5 * time.Second,
		ShutdownGrace: 30 * time.Second,
	}
	require.NoError(t, base.Validate())

	c := base
	c.ShutdownGrace = c.StoreTimeout
	assert.Error(t, c.Validate(), "grace must leave room for the final tracking writes")

	c = base
	c.MailerKind = "smtp"
	assert.Error(t, c.Validate())
	c.SMTPHost = "smtp.example.com"
	assert.NoError(t, c.Validate())

	c = base
	c.StoreDriver = "sqlite"
	assert.Error(t, c.Validate())

	c = base
	c.MaxRetries = -1
	assert.Error(t, c.Validate())
}

func TestLoadMockProviderLists(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MOCK_FAIL_ADDRESSES", "a@example.com,b@example.com")

	cfg := LoadMockProvider()
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.FailAddresses)
	assert.Equal(t, "8787", cfg.Port)
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
