package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/mizan/pkg/models"
)

func TestBuildDefaults(t *testing.T) {
	cfg, err := Build("", nil)
	require.NoError(t, err)

	assert.Equal(t, "mizan.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "utf-8", cfg.Import.XLSCharset)
	assert.False(t, cfg.Report.TolerateFetchErrors)
	assert.Equal(t, log.InfoLevel, cfg.Level())
}

func TestBuildPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mizan.yaml")
	data := []byte(`database:
  path: /var/lib/mizan/file.db
  timeout: 2s
server:
  addr: ":9000"
report:
  tolerate_fetch_errors: true
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("MIZAN_SERVER_ADDR", ":9100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("addr", "", "")
	require.NoError(t, flags.Parse([]string{"--db", "override.db"}))

	cfg, err := Build(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "override.db", cfg.Database.Path, "flag beats file")
	assert.Equal(t, 2*time.Second, cfg.Database.Timeout)
	assert.Equal(t, ":9100", cfg.Server.Addr, "env beats file and unset flag")
	assert.True(t, cfg.Report.TolerateFetchErrors)
	assert.Equal(t, log.DebugLevel, cfg.Level())
}

func TestBuildMissingFile(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestBuildInvalidLevel(t *testing.T) {
	t.Setenv("MIZAN_LOG_LEVEL", "loud")
	_, err := Build("", nil)
	assert.Error(t, err)
}

func TestTables(t *testing.T) {
	cfg := &Config{}
	tables, err := cfg.Tables()
	require.NoError(t, err)
	assert.Len(t, tables, len(models.Kinds))

	cfg.Import.FieldsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.Tables()
	assert.Error(t, err)
}
