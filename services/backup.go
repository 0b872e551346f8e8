package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"closet_backup/config"
	"closet_backup/httputil"
	"closet_backup/identity"
	"closet_backup/models"
	"closet_backup/scraper"
	"closet_backup/storage"
)

const scrapedAtLayout = "2006-01-02 15:04:05 MST"

// BackupService drives a full backup cycle per closet: enumerate listing
// links through the feed, fetch each listing's detail page, and persist one
// JSON document per listing to the object store.
type BackupService struct {
	cfg     *config.Config
	clients *httputil.Clients
	store   storage.ListingStore
	ops     *storage.SQLiteStore
	archive *storage.PostgresStore
	detail  *scraper.DetailFetcher
	paused  atomic.Bool
	// Debug enables raw feed response dumps next to the output files.
	Debug bool
	// FeedOrigin overrides the default site origin, for tests.
	FeedOrigin string
}

func NewBackupService(cfg *config.Config, clients *httputil.Clients, store storage.ListingStore, ops *storage.SQLiteStore, archive *storage.PostgresStore) *BackupService {
	return &BackupService{
		cfg:     cfg,
		clients: clients,
		store:   store,
		ops:     ops,
		archive: archive,
		detail:  scraper.NewDetailFetcher(clients.Detail),
	}
}

// Stats is the per-run outcome summary.
type Stats struct {
	LinksFound int
	Pages      int
	New        int
	Updated    int
	Skipped    int
	Errors     int
}

// RunAll backs up every configured closet sequentially.
func (s *BackupService) RunAll(ctx context.Context) {
	if s.paused.Load() {
		log.Printf("Backup: paused, skipping scheduled run")
		return
	}

	for _, closet := range s.cfg.Closets {
		if _, err := s.RunCloset(ctx, closet); err != nil {
			log.Printf("Warning: backup of %s: %v", closet.Username, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// RunCloset performs one backup run for a single closet. Link discovery
// failures mid-run do not abort: whatever was found is still backed up and
// the run is recorded as partial.
func (s *BackupService) RunCloset(ctx context.Context, closet *config.ClosetConfig) (*Stats, error) {
	log.Printf("Backup: starting run for closet %s", closet.Username)
	started := time.Now()

	run := &models.BackupRun{
		ClosetID:  closet.Username,
		StartedAt: started,
		Status:    models.RunStatusRunning,
	}
	runID, err := s.ops.CreateRun(run)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	run.ID = runID

	existing, err := s.existingSlugs(ctx, closet)
	if err != nil {
		log.Printf("Warning: listing existing backups for %s: %v", closet.Username, err)
		existing = map[string]struct{}{}
	}
	log.Printf("Backup: %d listings already backed up for %s", len(existing), closet.Username)

	feed := scraper.NewFeedClient(closet.Username, s.clients.Feed)
	if s.FeedOrigin != "" {
		feed.Origin = s.FeedOrigin
	}
	pag := scraper.NewPaginator(feed, closet.MaxPages, time.Duration(s.cfg.Scraper.FeedDelayMS)*time.Millisecond)
	if s.cfg.Scraper.RetryTransient {
		pag.Retry = scraper.RetryPolicy{
			Attempts: s.cfg.Scraper.RetryAttempts,
			Backoff:  2 * time.Second,
		}
	}
	if s.Debug {
		pag.Diag = scraper.NewFileDiagnostics(s.cfg.OutputDir)
	}

	res := pag.Run(ctx)

	stats := &Stats{LinksFound: len(res.Links), Pages: res.Pages}
	var backed []models.ListingDetail

	for _, link := range res.Links {
		if ctx.Err() != nil {
			break
		}
		slug := identity.ListingSlug(link)

		isNew := true
		if _, ok := existing[slug]; ok {
			if s.cfg.Scraper.Incremental {
				stats.Skipped++
				continue
			}
			isNew = false
		}

		detail, err := s.fetchDetail(ctx, link)
		if err != nil {
			log.Printf("Warning: listing %s: %v", slug, err)
			s.logRun(&runID, models.LogLevelWarn, fmt.Sprintf("listing %s: %v", slug, err), closet.Username)
			stats.Errors++
			continue
		}

		if err := s.persist(ctx, closet, slug, detail); err != nil {
			log.Printf("Warning: persist %s: %v", slug, err)
			s.logRun(&runID, models.LogLevelError, fmt.Sprintf("persist %s: %v", slug, err), closet.Username)
			stats.Errors++
			continue
		}

		existing[slug] = struct{}{}
		backed = append(backed, *detail)
		if isNew {
			stats.New++
		} else {
			stats.Updated++
		}

		if s.cfg.Scraper.VisitDetails {
			if err := sleep(ctx, time.Duration(closet.DelayMS)*time.Millisecond); err != nil {
				break
			}
		}
	}

	if err := s.writeStatusPage(ctx, closet, len(existing), stats); err != nil {
		log.Printf("Warning: status page for %s: %v", closet.Username, err)
	}
	if err := s.export(closet, backed); err != nil {
		log.Printf("Warning: export for %s: %v", closet.Username, err)
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = runStatus(res, stats)
	run.LinksFound = stats.LinksFound
	run.PagesFetched = stats.Pages
	run.ListingsNew = stats.New
	run.ListingsUpdated = stats.Updated
	run.ListingsSkipped = stats.Skipped
	run.ErrorsCount = stats.Errors
	if err := s.ops.UpdateRun(run); err != nil {
		log.Printf("Warning: update run: %v", err)
	}
	if err := s.ops.UpdateClosetStats(closet.Username, len(existing)); err != nil {
		log.Printf("Warning: update closet stats: %v", err)
	}

	log.Printf("Backup: %s done in %s: %d links, %d new, %d updated, %d skipped, %d errors (%s)",
		closet.Username, time.Since(started).Round(time.Second),
		stats.LinksFound, stats.New, stats.Updated, stats.Skipped, stats.Errors, run.Status)

	if res.State == scraper.StateFailed && res.Err != nil {
		return stats, fmt.Errorf("link discovery ended early: %w", res.Err)
	}
	return stats, nil
}

func runStatus(res *scraper.Result, stats *Stats) models.RunStatus {
	if res.State == scraper.StateFailed && stats.New+stats.Updated+stats.Skipped == 0 {
		return models.RunStatusFailed
	}
	if res.State == scraper.StateFailed || stats.Errors > 0 {
		return models.RunStatusPartial
	}
	return models.RunStatusCompleted
}

// existingSlugs enumerates what is already backed up, preferring the archive
// database when available and falling back to object store keys.
func (s *BackupService) existingSlugs(ctx context.Context, closet *config.ClosetConfig) (map[string]struct{}, error) {
	if s.archive != nil {
		return s.archive.Slugs(ctx, closet.Username)
	}

	keys, err := s.store.ListKeys(ctx, closet.S3Prefix+"/")
	if err != nil {
		return nil, err
	}
	slugs := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, closet.S3Prefix+"/")
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, "/") {
			continue
		}
		slugs[strings.TrimSuffix(name, ".json")] = struct{}{}
	}
	return slugs, nil
}

func (s *BackupService) fetchDetail(ctx context.Context, link string) (*models.ListingDetail, error) {
	scrapedAt := time.Now().UTC().Format(scrapedAtLayout)

	if !s.cfg.Scraper.VisitDetails {
		return &models.ListingDetail{URL: link, ScrapedAt: scrapedAt}, nil
	}

	detail, err := s.detail.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	detail.ScrapedAt = scrapedAt
	return detail, nil
}

func (s *BackupService) persist(ctx context.Context, closet *config.ClosetConfig, slug string, detail *models.ListingDetail) error {
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	key := closet.S3Prefix + "/" + slug + ".json"
	if err := s.store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	if s.archive != nil {
		if _, err := s.archive.UpsertListing(ctx, closet.Username, slug, detail); err != nil {
			log.Printf("Warning: archive upsert %s: %v", slug, err)
		}
	}
	return nil
}

func (s *BackupService) logRun(runID *int64, level models.LogLevel, message, closetID string) {
	if err := s.ops.Log(runID, level, message, closetID); err != nil {
		log.Printf("Warning: run log write: %v", err)
	}
}

// HandleCommand dispatches one queued command from the operational store.
func (s *BackupService) HandleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdBackupNow:
		s.RunAll(ctx)
		return nil
	case models.CmdBackupCloset:
		params, err := s.ops.ParseCommandParams(cmd)
		if err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		closet, ok := s.cfg.Closets[params.Closet]
		if !ok {
			return fmt.Errorf("unknown closet %q", params.Closet)
		}
		_, err = s.RunCloset(ctx, closet)
		return err
	case models.CmdPause:
		s.Pause()
		return nil
	case models.CmdResume:
		s.Resume()
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}

func (s *BackupService) Pause() {
	s.paused.Store(true)
	log.Printf("Backup: paused")
}

func (s *BackupService) Resume() {
	s.paused.Store(false)
	log.Printf("Backup: resumed")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
