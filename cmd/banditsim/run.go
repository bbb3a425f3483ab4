package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/banditlab/internal/config"
	"github.com/freeeve/banditlab/internal/model"
	"github.com/freeeve/banditlab/internal/report"
	"github.com/freeeve/banditlab/internal/repository/postgres"
	redisrepo "github.com/freeeve/banditlab/internal/repository/redis"
	"github.com/freeeve/banditlab/internal/service"
	"github.com/freeeve/banditlab/internal/sim"
	"github.com/freeeve/banditlab/pkg/bandit"
	"github.com/freeeve/banditlab/pkg/reward"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatCSV  = "csv"
)

var (
	runFile            string
	runName            string
	runStrategy        string
	runArms            string
	runHorizon         int
	runReplications    int
	runSeed            uint64
	runParams          bandit.Params
	runStopConfidence  float64
	runStopThreshold   float64
	runStopMinTrials   int
	runFormat          string
	runOutput          string
	runConfidenceLevel float64
	runPersist         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment",
	Long: `Run a bandit experiment described by a YAML/JSON file or by flags.

Arms are comma separated: bernoulli:<p>, normal:<mu>:<sigma> or constant:<value>.

Examples:
  banditsim run --file experiments/two-arm.yaml
  banditsim run --strategy ucb1 --arms bernoulli:0.2,bernoulli:0.8 --horizon 500
  banditsim run --strategy thompson --arms bernoulli:0.1,bernoulli:0.9 \
      --stop-confidence 0.95 --stop-threshold 0.01 --stop-min-trials 50
  banditsim run --file exp.yaml --format csv -o trials.csv`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runFile, "file", "f", "", "Experiment file (.yaml, .yml or .json)")
	f.StringVar(&runName, "name", "cli", "Experiment name")
	f.StringVarP(&runStrategy, "strategy", "s", bandit.NameThompson, "Strategy ("+strings.Join(bandit.Names(), ", ")+")")
	f.StringVarP(&runArms, "arms", "a", "", "Arm reward sources")
	f.IntVar(&runHorizon, "horizon", config.DefaultHorizon, "Trials per replication")
	f.IntVar(&runReplications, "replications", config.DefaultReplications, "Number of replications")
	f.Uint64Var(&runSeed, "seed", 0, "Seed for reproducible runs (random when unset)")
	f.Float64Var(&runParams.Epsilon, "epsilon", 0, "Exploration rate for epsilon_greedy")
	f.Float64Var(&runParams.AnnealingFactor, "annealing-factor", 0, "Annealing factor for epsilon_greedy_annealing")
	f.Float64Var(&runParams.Temperature, "temperature", 0, "Temperature for softmax and hedge")
	f.Float64Var(&runParams.Gamma, "gamma", 0, "Exploration rate for exp3")
	f.Float64Var(&runParams.Alpha, "alpha", 0, "Epoch growth parameter for ucb2")
	f.Float64Var(&runStopConfidence, "stop-confidence", 0, "Stop a replication once the best arm is known with this probability")
	f.Float64Var(&runStopThreshold, "stop-threshold", 0.01, "Potential value remaining below which stopping is evaluated")
	f.IntVar(&runStopMinTrials, "stop-min-trials", 100, "Trials before stopping is considered")
	f.StringVar(&runFormat, "format", formatText, "Output format (text, json, csv)")
	f.StringVarP(&runOutput, "output", "o", "", "Write output to a file instead of stdout")
	f.Float64Var(&runConfidenceLevel, "confidence-level", 0, "Report per-arm reward bands at this level, e.g. 0.95")
	f.BoolVar(&runPersist, "persist", false, "Store the run in DATABASE_URL and REDIS_URL")
}

func runRun(cmd *cobra.Command, args []string) error {
	switch runFormat {
	case formatText, formatJSON, formatCSV:
	default:
		return fmt.Errorf("unknown format %q", runFormat)
	}

	exp, err := experimentFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := newService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	out, err := svc.Run(ctx, exp)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if runOutput != "" {
		f, err := os.Create(runOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeOutcome(w, exp, out, runFormat, runConfidenceLevel)
}

// experimentFromFlags loads --file when given; otherwise it assembles the
// experiment from flags. Explicit flags override file values.
func experimentFromFlags(cmd *cobra.Command) (*config.Experiment, error) {
	flags := cmd.Flags()
	var exp *config.Experiment
	if runFile != "" {
		loaded, err := config.LoadExperiment(runFile)
		if err != nil {
			return nil, err
		}
		exp = loaded
	} else {
		if runArms == "" {
			return nil, fmt.Errorf("either --file or --arms is required")
		}
		exp = &config.Experiment{
			Name:         runName,
			Strategy:     runStrategy,
			Params:       runParams,
			Horizon:      runHorizon,
			Replications: runReplications,
		}
	}

	if flags.Changed("name") {
		exp.Name = runName
	}
	if flags.Changed("strategy") {
		exp.Strategy = runStrategy
	}
	if flags.Changed("arms") {
		arms, err := parseArms(runArms)
		if err != nil {
			return nil, err
		}
		exp.Arms = arms
	}
	if flags.Changed("horizon") {
		exp.Horizon = runHorizon
	}
	if flags.Changed("replications") {
		exp.Replications = runReplications
	}
	if flags.Changed("seed") {
		seed := runSeed
		exp.Seed = &seed
	}
	overrideParam(flags.Changed("epsilon"), &exp.Params.Epsilon, runParams.Epsilon)
	overrideParam(flags.Changed("annealing-factor"), &exp.Params.AnnealingFactor, runParams.AnnealingFactor)
	overrideParam(flags.Changed("temperature"), &exp.Params.Temperature, runParams.Temperature)
	overrideParam(flags.Changed("gamma"), &exp.Params.Gamma, runParams.Gamma)
	overrideParam(flags.Changed("alpha"), &exp.Params.Alpha, runParams.Alpha)
	if flags.Changed("stop-confidence") {
		exp.Stopping = &sim.StoppingConfig{
			Confidence:      runStopConfidence,
			RegretThreshold: runStopThreshold,
			MinTrials:       runStopMinTrials,
		}
	}

	exp.ApplyDefaults()
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

func overrideParam(changed bool, dst *float64, v float64) {
	if changed {
		*dst = v
	}
}

// parseArms parses "bernoulli:0.2,normal:1:0.5,constant:1".
func parseArms(s string) ([]reward.Spec, error) {
	var specs []reward.Spec
	for _, item := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		vals := make([]float64, len(parts)-1)
		for i, p := range parts[1:] {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("arm %q: %w", item, err)
			}
			vals[i] = v
		}

		spec := reward.Spec{Kind: strings.ToLower(parts[0])}
		switch {
		case spec.Kind == reward.KindBernoulli && len(vals) == 1:
			spec.P = vals[0]
		case spec.Kind == reward.KindNormal && len(vals) == 2:
			spec.Mu, spec.Sigma = vals[0], vals[1]
		case spec.Kind == reward.KindConstant && len(vals) == 1:
			spec.Value = vals[0]
		default:
			return nil, fmt.Errorf("arm %q: expected bernoulli:<p>, normal:<mu>:<sigma> or constant:<value>", item)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// newService returns an in-memory service, or one backed by Postgres and
// Redis with --persist.
func newService(ctx context.Context) (*service.ExperimentService, func(), error) {
	if !runPersist {
		return service.NewExperimentService(service.Options{}), func() {}, nil
	}

	cfg := config.Load()
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	cache, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Persisting run")

	svc := service.NewExperimentService(service.Options{
		Runs:       postgres.NewRunRepo(db),
		Cache:      cache,
		KeepTrials: true,
	})
	return svc, func() {
		cache.Close()
		db.Close()
	}, nil
}

type jsonOutcome struct {
	Run        *model.Run       `json:"run"`
	Summary    *report.Summary  `json:"summary"`
	Accuracy   []float64        `json:"accuracy"`
	Confidence []report.ArmBand `json:"confidence,omitempty"`
}

func writeOutcome(w io.Writer, exp *config.Experiment, out *service.Outcome, format string, level float64) error {
	if format == formatCSV {
		return report.WriteCSV(w, out.Result)
	}

	accuracy, err := report.Accuracy(out.Summary, reward.BestArm(exp.Arms))
	if err != nil {
		return err
	}
	var bands []report.ArmBand
	if level > 0 {
		bands, err = report.ArmConfidence(out.Result, len(exp.Arms), level)
		if err != nil {
			return err
		}
	}

	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonOutcome{Run: out.Run, Summary: out.Summary, Accuracy: accuracy, Confidence: bands})
	}
	return writeText(w, exp, out, accuracy, bands)
}

func writeText(w io.Writer, exp *config.Experiment, out *service.Outcome, accuracy []float64, bands []report.ArmBand) error {
	run := out.Run
	fmt.Fprintf(w, "Experiment:     %s\n", run.Experiment)
	fmt.Fprintf(w, "Strategy:       %s\n", run.Strategy)
	fmt.Fprintf(w, "Run:            %s\n", run.ID)
	fmt.Fprintf(w, "Replications:   %d (%d stopped early)\n", run.Replications, run.EarlyStops)
	fmt.Fprintf(w, "Trials:         %d\n", run.TotalTrials)
	fmt.Fprintf(w, "Mean reward:    %.4f\n", run.MeanFinalReward)
	fmt.Fprintf(w, "Best arm:       %d (expected %d)\n", run.BestArm, reward.BestArm(exp.Arms))
	if n := len(accuracy); n > 0 {
		fmt.Fprintf(w, "Final accuracy: %.3f\n", accuracy[n-1])
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARM\tSOURCE\tMEAN\tSELECTED\tBAND")
	last := out.Summary.Horizon() - 1
	for i, spec := range exp.Arms {
		selected := 0.0
		if last >= 0 {
			selected = out.Summary.SelectionRate[last][i]
		}
		band := "-"
		if i < len(bands) {
			if p, ok := bands[i].Final(); ok {
				band = fmt.Sprintf("[%.3f, %.3f]", p.Lower, p.Upper)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%s\n", i, spec.Kind, spec.Mean(), selected, band)
	}
	return tw.Flush()
}
