// Package ingest polls the latest box readings into storage.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// LatestSource returns the current reading of every sensor, or nil.
type LatestSource interface {
	FetchLatest(ctx context.Context) ([]models.SensorReading, error)
}

// Inserter stores a reading unless it is already present.
type Inserter interface {
	InsertIfAbsent(ctx context.Context, r models.SensorReading) (bool, error)
}

// Broadcaster receives the readings that were actually inserted.
type Broadcaster interface {
	PublishReadings(readings []models.SensorReading)
}

// Result counts the outcome of one poll.
type Result struct {
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	Invalid    int       `json:"invalid"`
	At         time.Time `json:"at"`
}

// Poller fetches, validates, stores and broadcasts the latest readings.
type Poller struct {
	source      LatestSource
	store       Inserter
	broadcaster Broadcaster
	logger      *zap.SugaredLogger
	now         func() time.Time

	// serializes PollOnce between the ticker and manual triggers
	mu sync.Mutex
}

// NewPoller returns a poller. broadcaster may be nil.
func NewPoller(source LatestSource, store Inserter, broadcaster Broadcaster, logger *zap.SugaredLogger) *Poller {
	return &Poller{
		source:      source,
		store:       store,
		broadcaster: broadcaster,
		logger:      logging.OrNop(logger),
		now:         time.Now,
	}
}

// PollOnce runs one fetch-validate-insert cycle. A source with nothing new is
// not an error. Duplicates are counted and left untouched.
func (p *Poller) PollOnce(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{At: p.now().UTC()}
	latest, err := p.source.FetchLatest(ctx)
	if err != nil {
		metrics.IncPoll(metrics.ResultError)
		return res, fmt.Errorf("fetch latest: %w", err)
	}
	res.Fetched = len(latest)
	if len(latest) == 0 {
		metrics.IncPoll(metrics.ResultSuccess)
		p.logger.Debug("no new readings")
		return res, nil
	}

	valid, invalid := models.FilterValid(latest, p.now())
	res.Invalid = invalid
	if invalid > 0 {
		p.logger.Warnw("dropped invalid readings", "count", invalid)
	}

	inserted := make([]models.SensorReading, 0, len(valid))
	for _, r := range valid {
		ok, err := p.store.InsertIfAbsent(ctx, r)
		if err != nil {
			metrics.IncPoll(metrics.ResultError)
			p.record(res)
			return res, fmt.Errorf("insert reading %s@%s: %w", r.SensorID, r.Timestamp.Format(time.RFC3339), err)
		}
		if !ok {
			res.Duplicates++
			p.logger.Debugw("duplicate reading skipped", "sensor_id", r.SensorID, "timestamp", r.Timestamp)
			continue
		}
		res.Inserted++
		inserted = append(inserted, r)
	}

	p.record(res)
	metrics.IncPoll(metrics.ResultSuccess)
	if p.broadcaster != nil && len(inserted) > 0 {
		p.broadcaster.PublishReadings(inserted)
	}
	p.logger.Infow("poll finished",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"invalid", res.Invalid,
	)
	return res, nil
}

func (p *Poller) record(res Result) {
	metrics.AddIngest(metrics.IngestInserted, res.Inserted)
	metrics.AddIngest(metrics.IngestDuplicate, res.Duplicates)
	metrics.AddIngest(metrics.IngestInvalid, res.Invalid)
}

// Run polls immediately and then every interval until ctx is done. Poll
// errors are logged and the loop keeps going.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warnw("live poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
