package container

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"goprep/adapters/execsvc"
	"goprep/adapters/ledger"
	"goprep/adapters/localexec"
	"goprep/adapters/tabular"
	"goprep/app"
	"goprep/internal/api"
	"goprep/internal/config"
	"goprep/internal/dataset"
	"goprep/internal/metrics"
	"goprep/internal/migration"
	"goprep/internal/preprocessing"
	"goprep/ports"
	"goprep/ui"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB      *sqlx.DB
	Metrics *metrics.Metrics
	SSEHub  *api.SSEHub

	// Adapters
	Ledger    ports.SubmissionLedger
	Exec      ports.ExecutionService
	Downloads ports.DownloadResolver
	Artifacts ui.ArtifactSource // set only for the local engine
	Summaries ports.SummaryProvider

	Service *app.PreprocessService
}

// New creates the container and initializes every component
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:  cfg,
		Metrics: metrics.New(),
	}

	if err := c.initLedger(); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	c.initExecution()
	c.initService()

	log.Printf("[Container] Initialized: exec=%s ledger=%s policy=%s", cfg.Execution.Mode, cfg.Ledger.Driver, cfg.Defaulting.Policy)
	return c, nil
}

// initLedger opens and migrates the submission ledger database
func (c *Container) initLedger() error {
	cfg := c.Config.Ledger
	if cfg.Driver == config.LedgerMemory {
		c.Ledger = ledger.NewMemoryLedger()
		return nil
	}

	if cfg.Driver == config.LedgerSQLite {
		if err := ensureSQLiteDir(cfg.URL); err != nil {
			return err
		}
	}
	db, err := ledger.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return err
	}
	if err := migration.NewRunner().Run(context.Background(), db); err != nil {
		db.Close()
		return fmt.Errorf("ledger migration failed: %w", err)
	}
	c.DB = db
	c.Ledger = ledger.NewSQLLedger(db)
	return nil
}

// initExecution selects the remote service client or the local engine
func (c *Container) initExecution() {
	cfg := c.Config.Execution
	c.Summaries = tabular.NewSummaryProvider(tabular.DefaultInferenceConfig())

	if cfg.Mode == config.ExecModeRemote {
		client := execsvc.NewClient(cfg.ServiceURL, cfg.Timeout)
		c.Exec, c.Downloads = client, client
		return
	}
	engine := localexec.NewEngine(localexec.Config{
		OutputDir:   cfg.OutputDir,
		Workers:     cfg.Workers,
		KFoldSplits: cfg.KFoldSplits,
		Inference:   tabular.DefaultInferenceConfig(),
	})
	c.Exec, c.Downloads, c.Artifacts = engine, engine, engine
}

// initService creates the SSE hub and the preprocessing service
func (c *Container) initService() {
	c.SSEHub = api.NewSSEHub()
	uploadDir := c.Config.Storage.UploadDir
	maxSize := c.Config.Storage.MaxFileSize

	c.Service = app.NewPreprocessService(app.ServiceDeps{
		Exec:      c.Exec,
		Downloads: c.Downloads,
		Summaries: c.Summaries,
		Ledger:    c.Ledger,
		Events:    api.NewSSEEventBroadcaster(c.SSEHub),
		Metrics:   c.Metrics,
		Stores: func(sessionID string) ports.DatasetStore {
			return dataset.NewLocalFileStorage(filepath.Join(uploadDir, sessionID), maxSize)
		},
		Policy:  preprocessing.ParseDefaultingPolicy(c.Config.Defaulting.Policy),
		Timeout: c.Config.Execution.Timeout,
	})
}

// HTTPServer builds the API router over the container's components
func (c *Container) HTTPServer() *ui.Server {
	return ui.NewServer(ui.Options{
		Service:        c.Service,
		Artifacts:      c.Artifacts,
		Events:         c.SSEHub.HandleSSE,
		Metrics:        c.Metrics.Handler(),
		Mode:           c.Config.Server.GinMode,
		CORSOrigins:    c.Config.Server.CORSOrigins,
		MaxUploadBytes: c.Config.Storage.MaxFileSize,
	})
}

// Shutdown waits for running submissions, then releases resources
func (c *Container) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.Service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[Container] Shutdown deadline reached with submissions still running")
	}

	if c.SSEHub != nil {
		c.SSEHub.Stop()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// ensureSQLiteDir creates the directory of a file-backed sqlite DSN
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	return nil
}
