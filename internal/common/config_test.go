package common

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
	path := filepath.Join(t.TempDir(), "reclaim.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, 30, config.Retention.Days)
	assert.Equal(t, "0 0 2 * * *", config.Retention.Schedule)
	assert.Empty(t, config.Schedule.ReferenceScan)
	assert.Equal(t, 90*time.Second, config.HashTimeout())
	assert.Equal(t, 5*time.Minute, config.ScanTimeout())
	require.Len(t, config.Assets.Backends, 1)
	assert.False(t, config.IsRemoteBackend("local"))
}

func TestLaterFilesOverrideEarlier(t *testing.T) {
	base := writeConfig(t, `
[server]
port = 9000

[assets]
base_url = "https://blog.example.com/"
backends = [
  { name = "local", kind = "local" },
  { name = "s3", kind = "remote" },
]

[batch]
concurrency = 0
`)
	override := writeConfig(t, `
[server]
port = 9001

[scan]
excluded_groups = ["avatars"]
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9001, config.Server.Port)
	assert.Equal(t, "https://blog.example.com", config.Assets.BaseURL)
	assert.True(t, config.IsRemoteBackend("s3"))
	assert.True(t, config.IsRemoteBackend("unknown"))
	assert.True(t, config.IsExcluded("avatars", "local"))
	assert.False(t, config.IsExcluded("blog", "local"))
	assert.Equal(t, 2, config.Batch.Concurrency, "non-positive concurrency is clamped")
}

func TestEnvOverridesFileAndFlagsOverrideEnv(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000
`)
	t.Setenv("RECLAIM_SERVER_PORT", "9100")
	t.Setenv("RECLAIM_LOG_OUTPUT", "stdout, ")
	t.Setenv("RECLAIM_RETENTION_DAYS", "7")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, []string{"stdout"}, config.Logging.Output)
	assert.Equal(t, 7, config.Retention.Days)

	ApplyFlagOverrides(config, 9200, "0.0.0.0")
	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"five field cron": `
[retention]
schedule = "0 2 * * *"`,
		"scan schedule": `
[schedule]
reference_scan = "every day"`,
		"backend kind": `
[assets]
backends = [{ name = "ftp", kind = "ftp" }]`,
		"duration": `
[scan]
hash_timeout = "ninety"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromFiles(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 */15 * * * *"))
	assert.NoError(t, ValidateSchedule("@daily"))
	assert.Error(t, ValidateSchedule("*/15 * * * *"))
}
