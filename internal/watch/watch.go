// Package watch detects changes to tracked files by polling their content.
package watch

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bashhack/statebak/internal/logger"
)

// Enqueuer receives the names of changed files.
type Enqueuer interface {
	QueueBackup(name string)
}

// Poller hashes each tracked file on every tick and reports the ones whose
// content changed since the previous tick. A file seen for the first time
// counts as changed, so the first scan reports every existing file.
type Poller struct {
	root     string
	files    []string
	interval time.Duration
	sink     Enqueuer
	logger   logger.Logger

	digests map[string][sha256.Size]byte
}

// New creates a Poller for files relative to root.
func New(root string, files []string, interval time.Duration, sink Enqueuer, log logger.Logger) *Poller {
	if log == nil {
		log = logger.Discard()
	}

	return &Poller{
		root:     root,
		files:    append([]string(nil), files...),
		interval: interval,
		sink:     sink,
		logger:   log,
		digests:  make(map[string][sha256.Size]byte, len(files)),
	}
}

// Run scans immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.files) == 0 {
		p.logger.Info("No files to watch")
		<-ctx.Done()
		return nil
	}

	p.logger.Info("Watching %d file(s) every %s", len(p.files), p.interval)
	p.Scan()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Scan()
		}
	}
}

// Scan hashes every tracked file once, queues the changed ones and returns
// their names. Missing or unreadable files are skipped and forgotten, so a
// file that reappears is reported again.
func (p *Poller) Scan() []string {
	var changed []string

	for _, name := range p.files {
		sum, err := hashFile(filepath.Join(p.root, name))
		if err != nil {
			if _, seen := p.digests[name]; seen {
				p.logger.Warning("Cannot read %s: %v", name, err)
				delete(p.digests, name)
			}
			continue
		}

		if prev, seen := p.digests[name]; seen && prev == sum {
			continue
		}
		p.digests[name] = sum
		changed = append(changed, name)
		p.sink.QueueBackup(name)
	}

	if len(changed) > 0 {
		p.logger.Info("Detected changes in %v", changed)
	}
	return changed
}

func hashFile(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte

	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
