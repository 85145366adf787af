package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ==================== Catalog Reloader ====================
// Re-applies the catalog file on a schedule so edits reach a running
// service without a restart.

// Reloader watches one catalog file and applies it to one database.
type Reloader struct {
	db   *sql.DB
	path string
	cron *cron.Cron

	mu       sync.Mutex
	lastSum  [sha256.Size]byte
	loads    int
	lastLoad time.Time
}

// NewReloader prepares a reloader for the catalog at path. Nothing runs
// until Start.
func NewReloader(db *sql.DB, path string) *Reloader {
	return &Reloader{
		db:   db,
		path: path,
		cron: cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
	}
}

// Start applies the catalog once, then re-applies it on the cron schedule
// given by spec: six-field expressions and descriptors like "@every 30s".
// The initial apply must succeed; later failures are logged and the
// previously applied tables stay in place.
func (r *Reloader) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, func() {
		if err := r.reload(); err != nil {
			log.Printf("catalog: reload %s: %v", r.path, err)
		}
	}); err != nil {
		return err
	}
	if err := r.reload(); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight reload to finish.
func (r *Reloader) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Loads reports how many times a catalog has been applied.
func (r *Reloader) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

// LastLoad reports when the catalog was last applied. The zero time means
// never.
func (r *Reloader) LastLoad() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLoad
}

// reload re-reads the file and applies it when its content changed since
// the last successful apply.
func (r *Reloader) reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	sum := sha256.Sum256(data)
	if sum == r.lastSum {
		return nil
	}
	cat, err := Parse(data)
	if err != nil {
		return err
	}
	if err := cat.Apply(context.Background(), r.db); err != nil {
		return err
	}
	r.lastSum = sum
	r.loads++
	r.lastLoad = time.Now()
	log.Printf("catalog: applied %d statement tables from %s", len(cat.Statements), r.path)
	return nil
}
