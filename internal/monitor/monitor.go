// Package monitor runs the analytics pipeline over the stored event history and
// decides which predictions are worth announcing.
//
// A refresh loads the most recent events, aggregates them into buckets, detects
// cascades and predicts every known bridge for the coming hour:
//
//	events ─┬─ Aggregator ──────► buckets ─┐
//	        ├─ CascadeDetector ─► relations┼─► PredictionEngine ─► predictions
//	        └──────────────────────────────┘
//
// Refreshes may overlap. Each gets a generation number and the newest completed
// generation is exposed through Latest; an older result that finishes late is
// still delivered to its caller but never replaces a newer one.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/bridgecast/internal/analytics"
	"github.com/rewired-gh/bridgecast/internal/cascade"
	"github.com/rewired-gh/bridgecast/internal/logger"
	"github.com/rewired-gh/bridgecast/internal/models"
	"github.com/rewired-gh/bridgecast/internal/prediction"
)

// EventSource supplies the event history, oldest first
type EventSource interface {
	RecentEvents(limit int) ([]models.Event, error)
}

// Config holds monitor behaviour
type Config struct {
	// MaxEvents caps the history loaded per refresh.
	MaxEvents int
	// Workers bounds concurrent per-bridge predictions.
	Workers int
	// AlertProbability and AlertMinConfidence select predictions worth announcing.
	AlertProbability   float64
	AlertMinConfidence float64
	// RenotifyDelta lets a bridge inside its cooldown through again when its
	// probability rose by at least this much since the last announcement.
	RenotifyDelta float64
}

// DefaultConfig returns the monitor defaults
func DefaultConfig() Config {
	return Config{
		MaxEvents:          20000,
		Workers:            4,
		AlertProbability:   0.5,
		AlertMinConfidence: 0.3,
		RenotifyDelta:      0.15,
	}
}

// Result is the outcome of one computation
type Result struct {
	RunID      string
	Generation uint64
	At         time.Time
	ComputedAt time.Time
	EventCount int
	Report     analytics.Report

	Buckets     []models.AnalyticsBucket
	Relations   []models.CascadeRelation
	Edges       []models.CascadeEdge
	Summaries   []analytics.BridgeSummary
	Predictions []models.Prediction

	// Err is set when the history could not be loaded; all other fields except
	// RunID, Generation and At are then empty.
	Err error
}

// notifiedRecord tracks a previously sent announcement for cooldown deduplication.
type notifiedRecord struct {
	Probability float64
	SentAt      time.Time
}

// Monitor handles refreshes and alert selection
type Monitor struct {
	source     EventSource
	cfg        Config
	aggregator *analytics.Aggregator
	detector   *cascade.Detector
	engine     *prediction.Engine

	generation atomic.Uint64
	latest     atomic.Pointer[Result]
	stale      atomic.Uint64

	mu       sync.Mutex
	notified map[int]notifiedRecord // key = bridge ID
}

// New creates a new Monitor instance
func New(source EventSource, cfg Config, aggregator *analytics.Aggregator, detector *cascade.Detector, engine *prediction.Engine) *Monitor {
	if cfg.MaxEvents < 1 {
		cfg.MaxEvents = DefaultConfig().MaxEvents
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if aggregator == nil {
		aggregator = analytics.New(analytics.DefaultConfig())
	}
	if detector == nil {
		detector = cascade.New(cascade.DefaultConfig())
	}
	if engine == nil {
		engine = prediction.New(prediction.DefaultConfig(), detector)
	}
	return &Monitor{
		source:     source,
		cfg:        cfg,
		aggregator: aggregator,
		detector:   detector,
		engine:     engine,
		notified:   make(map[int]notifiedRecord),
	}
}

// Compute runs the full pipeline over events for the hour starting at now.
// It does no I/O and does not touch Latest.
func (m *Monitor) Compute(events []models.Event, now time.Time) *Result {
	start := time.Now()
	defer func() { computeDuration.Observe(time.Since(start).Seconds()) }()

	clean := models.Sanitize(events)
	buckets, report := m.aggregator.AggregateWithReport(events)
	relations := m.detector.DetectCascades(clean)

	res := &Result{
		RunID:      uuid.New().String(),
		At:         now,
		EventCount: len(clean),
		Report:     report,
		Buckets:    buckets,
		Relations:  relations,
		Edges:      cascade.Edges(relations),
		Summaries:  analytics.Summarize(buckets),
	}
	res.Predictions = m.predictAll(res.Summaries, now, prediction.Inputs{
		Events:    clean,
		Buckets:   buckets,
		Relations: relations,
	})
	res.ComputedAt = time.Now()

	eventsAnalyzed.Set(float64(len(clean)))
	eventsRejected.WithLabelValues("invalid").Add(float64(report.Invalid))
	eventsRejected.WithLabelValues("duplicate").Add(float64(report.Duplicates))
	cascadeRelations.Set(float64(len(relations)))
	for _, p := range res.Predictions {
		predictionsGenerated.WithLabelValues(string(p.Tier)).Inc()
		predictionProbability.WithLabelValues(strconv.Itoa(p.BridgeID)).Set(p.Probability)
	}

	logger.Debug("Compute: %d events (%d invalid, %d duplicates), %d buckets, %d relations, %d predictions in %v",
		len(clean), report.Invalid, report.Duplicates, len(buckets), len(relations), len(res.Predictions), time.Since(start))

	return res
}

// predictAll predicts every summarised bridge with a bounded worker pool.
// Results are ordered by bridge ID.
func (m *Monitor) predictAll(summaries []analytics.BridgeSummary, now time.Time, in prediction.Inputs) []models.Prediction {
	slots := make([]*models.Prediction, len(summaries))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := min(m.cfg.Workers, len(summaries))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if p, ok := m.engine.PredictWith(summaries[i].BridgeID, now, in); ok {
					slots[i] = p
				}
			}
		}()
	}
	for i := range summaries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	predictions := make([]models.Prediction, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			predictions = append(predictions, *p)
		}
	}
	sort.Slice(predictions, func(i, j int) bool {
		return predictions[i].BridgeID < predictions[j].BridgeID
	})
	return predictions
}

// Refresh loads the latest history and computes on a separate goroutine. The
// returned channel yields exactly one result and is then closed.
func (m *Monitor) Refresh(ctx context.Context, now time.Time) <-chan *Result {
	gen := m.generation.Add(1)
	refreshesTotal.Inc()

	out := make(chan *Result, 1)
	go func() {
		defer close(out)
		out <- m.refresh(ctx, gen, now)
	}()
	return out
}

func (m *Monitor) refresh(ctx context.Context, gen uint64, now time.Time) *Result {
	fail := func(err error) *Result {
		refreshesFailed.Inc()
		logger.Warn("Refresh %d failed: %v", gen, err)
		return &Result{RunID: uuid.New().String(), Generation: gen, At: now, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	events, err := m.source.RecentEvents(m.cfg.MaxEvents)
	if err != nil {
		return fail(fmt.Errorf("failed to load events: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res := m.Compute(events, now)
	res.Generation = gen
	m.publish(res)
	return res
}

// publish stores res as Latest unless a newer generation already published.
func (m *Monitor) publish(res *Result) {
	for {
		cur := m.latest.Load()
		if cur != nil && cur.Generation > res.Generation {
			m.stale.Add(1)
			refreshesStale.Inc()
			logger.Debug("Refresh %d superseded by %d", res.Generation, cur.Generation)
			return
		}
		if m.latest.CompareAndSwap(cur, res) {
			return
		}
	}
}

// Latest returns the newest completed result, or nil before the first refresh completes.
func (m *Monitor) Latest() *Result {
	return m.latest.Load()
}

// StaleCount returns how many completed refreshes were superseded.
func (m *Monitor) StaleCount() uint64 {
	return m.stale.Load()
}

// Alerts returns the predictions at or above the alert probability and confidence,
// most likely first.
func (m *Monitor) Alerts(predictions []models.Prediction) []models.Prediction {
	alerts := make([]models.Prediction, 0)
	for _, p := range predictions {
		if p.Probability >= m.cfg.AlertProbability && p.Confidence >= m.cfg.AlertMinConfidence {
			alerts = append(alerts, p)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Probability > alerts[j].Probability
	})
	return alerts
}

// FilterRecentlySent removes bridges announced within cooldown of now, unless their
// probability rose by at least RenotifyDelta since. Returns a non-nil slice.
func (m *Monitor) FilterRecentlySent(predictions []models.Prediction, cooldown time.Duration, now time.Time) []models.Prediction {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.Prediction, 0, len(predictions))
	for _, p := range predictions {
		rec, exists := m.notified[p.BridgeID]
		if exists && now.Sub(rec.SentAt) < cooldown {
			// Recently sent: suppress unless it became notably more likely
			if p.Probability-rec.Probability < m.cfg.RenotifyDelta {
				continue
			}
		}
		result = append(result, p)
	}
	return result
}

// RecordNotified records the given predictions as announced at now.
// Call this after a successful Telegram send to enable cooldown deduplication.
func (m *Monitor) RecordNotified(predictions []models.Prediction, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range predictions {
		m.notified[p.BridgeID] = notifiedRecord{
			Probability: p.Probability,
			SentAt:      now,
		}
	}
}
