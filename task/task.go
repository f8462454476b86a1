package task

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	dpEs "github.com/ONSdigital/dp-elasticsearch/v3"
	dpEsClient "github.com/ONSdigital/dp-elasticsearch/v3/client"
	"github.com/ONSdigital/dp-net/v3/awsauth"
	dphttp "github.com/ONSdigital/dp-net/v3/http"
	"github.com/ONSdigital/log.go/v2/log"
	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/pkg/errors"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

const awsESService = "es"

// Task defines one migration run
type Task struct {
	cfg *config.Config
}

// Result holds final results of a task run
type Result struct {
	Success bool
	Report  *MigrationReport
}

// New returns a Task for the given configuration
func New(cfg *config.Config) *Task {
	return &Task{cfg: cfg}
}

// Run executes every configured migration and reports per-migration outcomes.
// It only returns an error for configuration problems found before any
// migration starts; individual migration failures live in the report.
func (t *Task) Run(ctx context.Context) (*Result, error) {
	cfg := t.cfg
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	migrations, err := config.LoadMigrations(cfg.MigrationFilePath)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "running index migration", log.Data{
		"migrations":    len(migrations),
		"target":        cfg.TargetElasticSearchURL,
		"source_remote": cfg.SourceRemoteHost,
	})

	hcClienter := dphttp.NewClient()
	hcClienter.SetMaxRetries(2)
	hcClienter.SetTimeout(cfg.TargetTimeout)

	esHTTPClient := hcClienter
	var signerRT http.RoundTripper
	if cfg.SignESRequests {
		log.Info(ctx, "use a signing roundtripper client")
		awsSignerRT, err := awsauth.NewAWSSignerRoundTripper(ctx, "", "", cfg.AwsRegion, awsESService,
			awsauth.Options{TlsInsecureSkipVerify: cfg.AwsSecSkipVerify})
		if err != nil {
			log.Error(ctx, "failed to create http signer", err)
			return nil, err
		}
		signerRT = awsSignerRT
		esHTTPClient = dphttp.NewClientWithTransport(awsSignerRT)
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.TargetElasticSearchURL},
		Username:  cfg.TargetUsername,
		Password:  cfg.TargetPassword,
		Transport: signerRT,
	})
	if err != nil {
		log.Error(ctx, "failed to create target elasticsearch client", err)
		return nil, err
	}

	adminClient, err := dpEs.NewClient(dpEsClient.Config{
		ClientLib: dpEsClient.GoElasticV710,
		Address:   cfg.TargetElasticSearchURL,
		Transport: esHTTPClient,
	})
	if err != nil {
		log.Error(ctx, "failed to create dp-elasticsearch client", err)
		return nil, err
	}

	admin := &indexAdmin{client: adminClient}
	if cfg.CreateDestIndices {
		settings, err := loadDestIndexSettings(cfg.DestIndexSettingsPath)
		if err != nil {
			return nil, err
		}
		if err := admin.createDestIndices(ctx, migrations, settings); err != nil {
			return nil, err
		}
	}

	tracker := &Tracker{}
	client := newReindexClient(esClient, cfg)
	orch := &orchestrator{
		migrator: &unitMigrator{
			submitter: client,
			poller:    newPoller(client, cfg, tracker),
			strict:    cfg.StrictCompletion,
		},
		maxConcurrent:   int64(cfg.MaxConcurrentMigrations),
		tracker:         tracker,
		trackerInterval: cfg.TrackerInterval,
	}

	report := orch.Run(ctx, migrations)

	// post-run administration is skipped on a cancelled run
	if ctx.Err() == nil {
		if cfg.DeleteFailedIndices {
			if err := admin.deleteFailedIndices(ctx, report); err != nil {
				log.Error(ctx, "failed to clean up after failed migrations", err)
			}
		}
		if cfg.SwapAlias != "" && report.AllSucceeded() && len(report.Results) > 0 {
			if err := admin.swapAlias(ctx, cfg.SwapAlias, destIndices(migrations)); err != nil {
				log.Error(ctx, "failed to swap alias onto migrated indices", err)
				return &Result{Success: false, Report: report}, nil
			}
		}
	}

	return &Result{Success: report.AllSucceeded(), Report: report}, nil
}

// validateConfig rejects unusable parameters before any migration starts
func validateConfig(cfg *config.Config) error {
	if cfg.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be greater than zero")
	}
	if cfg.PollTimeout < cfg.PollInterval {
		return errors.New("POLL_TIMEOUT must be at least POLL_INTERVAL")
	}
	if cfg.PollMaxRetries < 0 {
		return errors.New("POLL_MAX_RETRIES must not be negative")
	}
	if cfg.MaxConcurrentMigrations < 1 {
		return errors.New("MAX_CONCURRENT_MIGRATIONS must be at least 1")
	}
	if cfg.RequestsPerSecond == 0 || cfg.RequestsPerSecond < -1 {
		return errors.New("REQUESTS_PER_SECOND must be positive, or -1 for unthrottled")
	}
	if cfg.TargetElasticSearchURL == "" {
		return errors.New("TARGET_ELASTIC_SEARCH_URL must be set")
	}
	if cfg.SourceRemoteHost == "" {
		return errors.New("SOURCE_REMOTE_HOST must be set")
	}
	return nil
}

// loadDestIndexSettings reads the optional index settings body passed verbatim
// to index creation
func loadDestIndexSettings(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read destination index settings")
	}
	if !json.Valid(b) {
		return nil, errors.New("destination index settings file is not valid json")
	}
	return b, nil
}

func destIndices(migrations []config.Migration) []string {
	indices := make([]string, len(migrations))
	for i, m := range migrations {
		indices[i] = m.Dest
	}
	return indices
}
