// Command urbanrisk runs the urban risk inference service and its
// offline assessment tools.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cityscope/urbanrisk/internal/classify"
	"github.com/cityscope/urbanrisk/internal/config"
	"github.com/cityscope/urbanrisk/internal/domain"
	"github.com/cityscope/urbanrisk/internal/inference"
	httpiface "github.com/cityscope/urbanrisk/internal/interfaces/http"
	"github.com/cityscope/urbanrisk/internal/policy"
	"github.com/cityscope/urbanrisk/internal/realtime"
	"github.com/cityscope/urbanrisk/internal/scenario"
	"github.com/cityscope/urbanrisk/internal/warehouse"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "urbanrisk",
		Short: "Multi-domain urban risk inference and scenario simulation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")

	root.AddCommand(serveCmd(), assessCmd(), simulateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func newEngine() *inference.Engine {
	return inference.NewEngine(classify.NewPrototypeModel())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel == "info" && cfg.LogLevel != "" {
				setupLogging(cfg.LogLevel)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cfg.Inference.ResilienceWeights
			engine := inference.NewEngine(classify.NewPrototypeModel(),
				inference.WithWeights(inference.ResilienceWeights{
					Environmental: w.Environmental,
					Health:        w.Health,
					Food:          w.Food,
				}))
			pol := policy.NewEngine(engine)
			manager := realtime.NewManager(engine,
				realtime.WithWindowSize(cfg.Realtime.WindowSize),
				realtime.WithStaleThreshold(cfg.Realtime.StaleThreshold.Std()),
				realtime.WithInferenceRate(cfg.Realtime.MaxInferenceRate),
			)
			hub := realtime.NewHub()

			var store *warehouse.Store
			if cfg.Warehouse.DSN != "" {
				store, err = warehouse.Open(ctx, cfg.Warehouse.DSN, cfg.Warehouse.QueryTimeout.Std())
				if err != nil {
					log.Warn().Err(err).Msg("warehouse unavailable, serving cached and estimated baselines")
				} else {
					defer store.Close()
				}
			}
			var cache *warehouse.Cache
			if cfg.Warehouse.RedisAddr != "" {
				cache = warehouse.NewCache(warehouse.NewRedisClient(cfg.Warehouse.RedisAddr), cfg.Warehouse.CacheTTL.Std())
			}
			source := warehouse.NewSource(store, cache)

			go realtime.RunLoop(ctx, manager, hub, cfg.Realtime.BroadcastInterval.Std())

			server := httpiface.NewServer(cfg, engine, pol, manager, hub, source)
			return server.ListenAndServe(ctx)
		},
	}
}

func assessCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Score a metric bag from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			bag, err := readBag(inputPath)
			if err != nil {
				return err
			}

			record, err := newEngine().Predict(cmd.Context(), bag)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"assessment":   record,
				"explanations": inference.Explain(record, bag),
			})
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "metric bag JSON file, - for stdin")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		presetID  string
		prompt    string
		inputPath string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a what-if scenario against a baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			source := warehouse.NewSource(nil, nil)
			baseline := source.Baseline(cmd.Context(), "mumbai")
			if inputPath != "" {
				bag, err := readBag(inputPath)
				if err != nil {
					return err
				}
				applyBagToBaseline(baseline, bag)
			}

			result, err := scenario.Simulate(*baseline, scenario.Request{
				PresetID:     presetID,
				CustomPrompt: prompt,
			})
			if err != nil {
				return err
			}

			engine := newEngine()
			baselineRisk, err := engine.Predict(cmd.Context(), baseline.MetricBag())
			if err != nil {
				return err
			}
			simulatedRisk, err := engine.Predict(cmd.Context(), result.SimulatedBag())
			if err != nil {
				return err
			}
			result.Validation.MLExecuted = true

			return printJSON(map[string]any{
				"simulation":     result,
				"baseline_risk":  baselineRisk,
				"simulated_risk": simulatedRisk,
			})
		},
	}
	cmd.Flags().StringVar(&presetID, "preset", "", "scenario preset id")
	cmd.Flags().StringVar(&prompt, "prompt", "", "free-text scenario description")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "optional baseline metric bag JSON file")
	return cmd
}

func readBag(path string) (domain.MetricBag, error) {
	var bag domain.MetricBag

	var reader io.Reader = os.Stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return bag, err
		}
		defer f.Close()
		reader = f
	}
	if err := json.NewDecoder(reader).Decode(&bag); err != nil {
		return bag, fmt.Errorf("failed to parse metric bag: %w", err)
	}
	return bag, nil
}

func applyBagToBaseline(b *domain.Baseline, bag domain.MetricBag) {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&b.AQI, bag.AQI)
	set(&b.Temperature, bag.Temperature)
	set(&b.HospitalLoadPct, bag.HospitalLoad)
	set(&b.CropSupply, bag.CropSupplyIndex)
	set(&b.FoodPriceIndex, bag.FoodPriceIndex)
	set(&b.TrafficDensity, bag.TrafficDensity)
	set(&b.RespiratoryCases, bag.RespiratoryCases)
	set(&b.Rainfall, bag.Rainfall)
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
