package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"closet_backup/config"
	"closet_backup/models"
)

// export writes flat-file aggregates of the listings backed up this run into
// the local output directory, in whichever formats the closet config asks for.
func (s *BackupService) export(closet *config.ClosetConfig, listings []models.ListingDetail) error {
	if len(listings) == 0 {
		return nil
	}

	switch closet.Format {
	case "json":
		return s.exportJSON(closet, listings)
	case "csv":
		return s.exportCSV(closet, listings)
	case "both":
		if err := s.exportJSON(closet, listings); err != nil {
			return err
		}
		return s.exportCSV(closet, listings)
	default:
		return fmt.Errorf("unknown export format %q", closet.Format)
	}
}

func (s *BackupService) exportJSON(closet *config.ClosetConfig, listings []models.ListingDetail) error {
	data, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.cfg.OutputDir, closet.Username+"_listings.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	log.Printf("Export: wrote %d listings to %s", len(listings), path)
	return nil
}

func (s *BackupService) exportCSV(closet *config.ClosetConfig, listings []models.ListingDetail) error {
	path := filepath.Join(s.cfg.OutputDir, closet.Username+"_listings.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"url", "name", "description", "scraped_at"}); err != nil {
		return err
	}
	for _, l := range listings {
		if err := w.Write([]string{l.URL, l.Name, l.Description, l.ScrapedAt}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	log.Printf("Export: wrote %d listings to %s", len(listings), path)
	return nil
}
