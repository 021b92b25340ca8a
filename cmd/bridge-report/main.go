// Command bridge-report prints a one-shot analytics report over a stored or
// file-based opening history: per-bridge summaries, the strongest cascades, and
// predictions for one hour.
//
//	bridge-report -config configs/config.yaml -at 2024-04-02T15:00:00-07:00
//	bridge-report -input openings.json -bridge 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rewired-gh/bridgecast/internal/analytics"
	"github.com/rewired-gh/bridgecast/internal/cascade"
	"github.com/rewired-gh/bridgecast/internal/config"
	"github.com/rewired-gh/bridgecast/internal/logger"
	"github.com/rewired-gh/bridgecast/internal/models"
	"github.com/rewired-gh/bridgecast/internal/monitor"
	"github.com/rewired-gh/bridgecast/internal/prediction"
	"github.com/rewired-gh/bridgecast/internal/storage"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	inputPath  = flag.String("input", "", "JSON file with an array of openings; reads the store when empty")
	bridgeID   = flag.Int("bridge", 0, "Only predict this bridge")
	atFlag     = flag.String("at", "", "Start of the predicted hour (RFC3339); defaults to now")
	topEdges   = flag.Int("top", 10, "Number of cascade links to show")
	asJSON     = flag.Bool("json", false, "Print predictions as JSON")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, "text")

	at := time.Now()
	if *atFlag != "" {
		at, err = time.Parse(time.RFC3339, *atFlag)
		if err != nil {
			log.Fatalf("Invalid -at value: %v", err)
		}
	}

	events, err := loadEvents(cfg, *inputPath)
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}

	detector := cascade.New(cfg.DetectorSettings())
	engine := prediction.New(cfg.EngineSettings(), detector)
	mon := monitor.New(nil, cfg.MonitorSettings(), analytics.New(cfg.AggregatorSettings()), detector, engine)

	res := mon.Compute(events, at)

	if *bridgeID > 0 {
		res.Predictions = filterBridge(res.Predictions, *bridgeID)
		if len(res.Predictions) == 0 {
			// Unknown bridges still get the system-wide estimate
			if p, ok := engine.PredictWith(*bridgeID, at, prediction.Inputs{Events: events, Buckets: res.Buckets, Relations: res.Relations}); ok {
				res.Predictions = []models.Prediction{*p}
			}
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Predictions); err != nil {
			log.Fatalf("Failed to encode predictions: %v", err)
		}
		return
	}

	printHeader(res, cfg.Location())
	printSummaries(res.Summaries)
	printEdges(res.Edges, res.Summaries, *topEdges)
	printPredictions(res.Predictions)
}

func loadEvents(cfg *config.Config, path string) ([]models.Event, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var events []models.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return events, nil
	}

	store, err := storage.New(cfg.Storage.MaxEvents, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	return store.RecentEvents(cfg.Monitor.MaxEvents)
}

func filterBridge(predictions []models.Prediction, id int) []models.Prediction {
	var out []models.Prediction
	for _, p := range predictions {
		if p.BridgeID == id {
			out = append(out, p)
		}
	}
	return out
}
