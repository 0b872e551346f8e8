package scraper

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// DiagnosticsSink receives raw feed responses for offline inspection. Sinks
// are best-effort: the data path never depends on a dump succeeding.
type DiagnosticsSink interface {
	DumpResponse(page int, body []byte)
}

type fileSink struct {
	dir string
}

// NewFileDiagnostics returns a sink that writes each dumped response to
// feed_page_N.json under dir. Write failures are logged and swallowed.
func NewFileDiagnostics(dir string) DiagnosticsSink {
	return &fileSink{dir: dir}
}

func (s *fileSink) DumpResponse(page int, body []byte) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		log.Printf("Warning: diagnostics dir: %v", err)
		return
	}
	path := filepath.Join(s.dir, fmt.Sprintf("feed_page_%d.json", page))
	if err := os.WriteFile(path, body, 0644); err != nil {
		log.Printf("Warning: diagnostics write: %v", err)
		return
	}
	log.Printf("Saved feed response to %s", path)
}
