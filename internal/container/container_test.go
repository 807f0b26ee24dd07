package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"goprep/adapters/execsvc"
	"goprep/adapters/ledger"
	"goprep/adapters/localexec"
	"goprep/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Port: "0", GinMode: "test", CORSOrigins: []string{"*"}},
		Execution: config.ExecutionConfig{
			Mode:        config.ExecModeLocal,
			Timeout:     time.Minute,
			OutputDir:   filepath.Join(dir, "out"),
			Workers:     1,
			KFoldSplits: 5,
		},
		Ledger:     config.LedgerConfig{Driver: config.LedgerSQLite, URL: "file:" + filepath.Join(dir, "db", "ledger.db")},
		Storage:    config.StorageConfig{UploadDir: filepath.Join(dir, "uploads"), MaxFileSize: 1 << 20},
		Defaulting: config.DefaultingConfig{Policy: "once"},
	}
}

func TestNewLocalWithSQLite(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })

	require.NotNil(t, c.DB)
	assert.IsType(t, &ledger.SQLLedger{}, c.Ledger)
	assert.IsType(t, &localexec.Engine{}, c.Exec)
	assert.NotNil(t, c.Artifacts)

	subs, err := c.Ledger.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, subs)

	rec := httptest.NewRecorder()
	c.HTTPServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRemoteWithMemoryLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.Mode = config.ExecModeRemote
	cfg.Execution.ServiceURL = "http://exec.test"
	cfg.Ledger.Driver = config.LedgerMemory

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })

	assert.Nil(t, c.DB)
	assert.IsType(t, &execsvc.Client{}, c.Exec)
	assert.Nil(t, c.Artifacts)
	assert.Equal(t, "http://exec.test/download-preprocessed/a.csv", c.Downloads.DownloadURL("a.csv"))
}

func TestEnsureSQLiteDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ensureSQLiteDir("file:"+filepath.Join(dir, "nested", "l.db")+"?_pragma=busy_timeout(5000)"))
	assert.DirExists(t, filepath.Join(dir, "nested"))
	require.NoError(t, ensureSQLiteDir(":memory:"))
}
