package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/config"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/fetcher"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/logging"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/normalize"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/notify"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/progress"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/scraper"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/server"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/snapshot"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/storage"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/storage/gcs"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/storage/local"
	s3store "github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/storage/s3"
)

const dateLayout = "2006-01-02"

var (
	startDateFlag string
	endDateFlag   string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest all trials registered in a date window, one run per day",
	RunE:  runHarvest,
}

func init() {
	harvestCmd.Flags().StringVar(&startDateFlag, "start-date", "", "first day of the window (YYYY-MM-DD)")
	harvestCmd.Flags().StringVar(&endDateFlag, "end-date", "", "last day of the window (YYYY-MM-DD)")
	_ = harvestCmd.MarkFlagRequired("start-date")
	_ = harvestCmd.MarkFlagRequired("end-date")
	rootCmd.AddCommand(harvestCmd)
}

// harvestDeps bundles everything one day's run needs.
type harvestDeps struct {
	cfg       config.Config
	logger    *zap.Logger
	scraper   *scraper.Scraper
	provider  storage.Provider
	publisher notify.Publisher
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	start, err := time.Parse(dateLayout, startDateFlag)
	if err != nil {
		return fmt.Errorf("invalid --start-date: %w", err)
	}
	end, err := time.Parse(dateLayout, endDateFlag)
	if err != nil {
		return fmt.Errorf("invalid --end-date: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("--end-date %s is before --start-date %s", endDateFlag, startDateFlag)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, logPath, closeLog, err := logging.NewRunLogger(cfg.Logging.Development, cfg.Output.LogsDir, time.Now().UTC())
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
		_ = closeLog()
	}()
	if logPath != "" {
		logger.Info("run log file opened", zap.String("path", logPath))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Addr != "" {
		srv := server.New(cfg.Server.Addr, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	events := progress.Multi{progress.NewLogSink(logger), progress.NewPrometheusSink()}

	f, err := fetcher.New(fetcher.Config{
		UserAgent:    cfg.Register.UserAgent,
		Accept:       cfg.Register.Accept,
		RequestDelay: cfg.RequestDelay(),
		MaxBackoff:   cfg.MaxBackoff(),
		MaxAttempts:  cfg.HTTP.MaxAttempts,
		Timeout:      cfg.RequestTimeout(),
	}, logger, events)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}

	scr, err := scraper.New(scraper.Config{BaseURL: cfg.Register.BaseURL}, f, logger, events)
	if err != nil {
		return fmt.Errorf("build scraper: %w", err)
	}

	provider, err := buildStorageProvider(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	publisher, stopPublisher, err := buildPublisher(ctx, cfg.PubSub)
	if err != nil {
		return err
	}
	defer stopPublisher()

	deps := harvestDeps{
		cfg:       cfg,
		logger:    logger,
		scraper:   scr,
		provider:  provider,
		publisher: publisher,
	}

	// One independent run per day so a single bad day never poisons the
	// rest of the window.
	var dayErrs []error
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := harvestDay(ctx, deps, day); err != nil {
			if ctx.Err() != nil {
				return err
			}
			dayErrs = append(dayErrs, fmt.Errorf("day %s: %w", day.Format(dateLayout), err))
			logger.Error("day failed", zap.String("day", day.Format(dateLayout)), zap.Error(err))
		}
	}
	return errors.Join(dayErrs...)
}

func harvestDay(ctx context.Context, deps harvestDeps, day time.Time) error {
	runStart := time.Now().UTC()
	deps.logger.Info("harvesting day", zap.String("day", day.Format(dateLayout)))

	part, err := deps.scraper.Run(ctx, day, day)
	if err != nil {
		return err
	}

	snap := snapshot.New(day, day, runStart, part)
	snapPath, err := snap.WriteFile(deps.cfg.Output.DataDir)
	if err != nil {
		return err
	}
	deps.logger.Info("snapshot written", zap.String("path", snapPath),
		zap.Int("succeeded", len(part.Successes)), zap.Int("failed", len(part.Errors)))

	tables, rowErrs := normalize.Normalize(part.Successes)
	for _, rowErr := range rowErrs {
		deps.logger.Warn("row skipped during normalization",
			zap.String("table", rowErr.Table),
			zap.String("eudract_number", rowErr.EudractNumber),
			zap.String("reason", rowErr.Reason))
	}

	exports, err := encodeExports(snap, tables)
	if err != nil {
		return err
	}
	for _, obj := range exports {
		path := filepath.Join(deps.cfg.Output.DataDir, obj.Name)
		if err := os.WriteFile(path, obj.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	var uploaded []string
	if deps.provider != nil {
		uris, err := storage.UploadAll(ctx, deps.provider, deps.cfg.Storage.Prefix, exports)
		if err != nil {
			// Partial uploads are reported but do not fail the day; the
			// artifacts are already on disk.
			deps.logger.Error("table export incomplete", zap.Error(err))
		}
		uploaded = uris
	}

	if deps.publisher != nil {
		payload := map[string]any{
			"run_id":           uuid.NewString(),
			"snapshot":         snap.Filename(),
			"query_start_date": snap.Metadata.QueryStartDate,
			"query_end_date":   snap.Metadata.QueryEndDate,
			"succeeded":        len(part.Successes),
			"failed":           len(part.Errors),
			"table_uris":       uploaded,
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		}
		if _, err := deps.publisher.Publish(ctx, payload); err != nil {
			deps.logger.Error("completion notification failed", zap.Error(err))
		}
	}
	return nil
}

// encodeExports renders the three CSV tables under their run-scoped names.
func encodeExports(snap snapshot.Snapshot, tables normalize.Tables) ([]storage.Object, error) {
	cardsName, protocolsName, resultsName := snap.TableFilenames()

	cards, err := tables.EncodeCards()
	if err != nil {
		return nil, fmt.Errorf("encode cards: %w", err)
	}
	protocols, err := tables.EncodeProtocols()
	if err != nil {
		return nil, fmt.Errorf("encode protocols: %w", err)
	}
	results, err := tables.EncodeResults()
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}

	return []storage.Object{
		{Name: cardsName, ContentType: "text/csv", Data: cards},
		{Name: protocolsName, ContentType: "text/csv", Data: protocols},
		{Name: resultsName, ContentType: "text/csv", Data: results},
	}, nil
}

func buildStorageProvider(ctx context.Context, cfg config.StorageConfig) (storage.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		store, err := local.New(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcs.New(client, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("gcs storage: %w", err)
		}
		return store, nil
	case "s3":
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.PubSubConfig) (notify.Publisher, func(), error) {
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := notify.NewPubSub(client, cfg.TopicName)
	if err != nil {
		return nil, nil, err
	}
	stop := func() {
		pub.Stop()
		_ = client.Close()
	}
	return pub, stop, nil
}
