package services

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"closet_backup/config"
)

// statusTemplate renders the per-closet index.html uploaded next to the
// listing documents, so the bucket itself answers "when did this last run".
var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}} backup</title>
<style>
body { font-family: sans-serif; max-width: 640px; margin: 2em auto; color: #222; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: 6px 12px; border-bottom: 1px solid #ddd; }
h1 { font-size: 1.4em; }
.muted { color: #888; font-size: 0.85em; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<table>
<tr><th>Listings backed up</th><td>{{.TotalBackedUp}}</td></tr>
<tr><th>Links found last run</th><td>{{.LinksFound}}</td></tr>
<tr><th>New this run</th><td>{{.New}}</td></tr>
<tr><th>Updated this run</th><td>{{.Updated}}</td></tr>
<tr><th>Skipped (already backed up)</th><td>{{.Skipped}}</td></tr>
<tr><th>Errors</th><td>{{.Errors}}</td></tr>
</table>
<p class="muted">Last run finished {{.FinishedAt}}</p>
</body>
</html>
`))

type statusData struct {
	Name          string
	TotalBackedUp int
	LinksFound    int
	New           int
	Updated       int
	Skipped       int
	Errors        int
	FinishedAt    string
}

func (s *BackupService) writeStatusPage(ctx context.Context, closet *config.ClosetConfig, total int, stats *Stats) error {
	var buf bytes.Buffer
	err := statusTemplate.Execute(&buf, statusData{
		Name:          closet.Name,
		TotalBackedUp: total,
		LinksFound:    stats.LinksFound,
		New:           stats.New,
		Updated:       stats.Updated,
		Skipped:       stats.Skipped,
		Errors:        stats.Errors,
		FinishedAt:    time.Now().UTC().Format(scrapedAtLayout),
	})
	if err != nil {
		return err
	}
	return s.store.Put(ctx, closet.S3Prefix+"/index.html", buf.Bytes(), "text/html")
}
