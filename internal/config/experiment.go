package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/freeeve/banditlab/internal/sim"
	"github.com/freeeve/banditlab/pkg/bandit"
	"github.com/freeeve/banditlab/pkg/reward"
)

// Defaults filled in for fields left at their zero value.
const (
	DefaultHorizon      = 1000
	DefaultReplications = 100
	DefaultTemperature  = 0.1
	DefaultGamma        = 0.1
	DefaultUCB2Alpha    = 0.5
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		return slices.Contains(bandit.Names(), fl.Field().String())
	})
}

// Experiment describes one simulation run: a strategy, its arms and the
// harness settings. Seed, when set, makes the run reproducible.
type Experiment struct {
	Name         string              `json:"name" yaml:"name" validate:"required,max=128"`
	Strategy     string              `json:"strategy" yaml:"strategy" validate:"required,strategy"`
	Params       bandit.Params       `json:"params" yaml:"params"`
	Arms         []reward.Spec       `json:"arms" yaml:"arms" validate:"required,min=1,dive"`
	Horizon      int                 `json:"horizon" yaml:"horizon" validate:"gte=1"`
	Replications int                 `json:"replications" yaml:"replications" validate:"gte=1"`
	Seed         *uint64             `json:"seed,omitempty" yaml:"seed,omitempty"`
	Stopping     *sim.StoppingConfig `json:"stopping,omitempty" yaml:"stopping,omitempty"`
}

// ApplyDefaults fills zero-valued settings. Epsilon is left alone since 0 is
// a meaningful value.
func (e *Experiment) ApplyDefaults() {
	if e.Horizon == 0 {
		e.Horizon = DefaultHorizon
	}
	if e.Replications == 0 {
		e.Replications = DefaultReplications
	}
	switch e.Strategy {
	case bandit.NameEpsilonGreedyAnnealing:
		if e.Params.AnnealingFactor == 0 {
			e.Params.AnnealingFactor = bandit.DefaultAnnealingFactor
		}
	case bandit.NameSoftmax, bandit.NameHedge:
		if e.Params.Temperature == 0 {
			e.Params.Temperature = DefaultTemperature
		}
	case bandit.NameEXP3:
		if e.Params.Gamma == 0 {
			e.Params.Gamma = DefaultGamma
		}
	case bandit.NameUCB2:
		if e.Params.Alpha == 0 {
			e.Params.Alpha = DefaultUCB2Alpha
		}
	}
}

// Validate checks struct constraints, then the strategy hyperparameters, the
// arm specs and the stopping settings, so anything Build would reject fails
// here. The first failure is reported as a bandit.ConfigError.
func (e *Experiment) Validate() error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Experiment.")
			return bandit.InvalidConfig("experiment", field, describe(fe))
		}
		return fmt.Errorf("validate experiment: %w", err)
	}
	if _, err := bandit.New(e.Strategy, len(e.Arms), e.Params); err != nil {
		return err
	}
	if _, err := reward.Build(e.Arms, nil); err != nil {
		return err
	}
	if e.Stopping != nil {
		return e.Stopping.Validate()
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "strategy":
		return fmt.Sprintf("must be one of %s, got %q", strings.Join(bandit.Names(), ", "), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %v", fe.Param(), fe.Value())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("must satisfy %s, got %v", fe.Tag(), fe.Value())
	}
}

// Sources returns independent random sources for the strategy and the arms.
// Without a seed both are nil, which selects fresh random state.
func (e *Experiment) Sources() (strategySrc, rewardSrc rand.Source) {
	if e.Seed == nil {
		return nil, nil
	}
	return bandit.SeedSource(*e.Seed), bandit.SeedSource(*e.Seed + 1)
}

// Build constructs the strategy, the reward sources and the harness config.
func (e *Experiment) Build(observer sim.Observer) (bandit.Strategy, []reward.Source, sim.Config, error) {
	stratSrc, rewardSrc := e.Sources()
	var opts []bandit.Option
	if stratSrc != nil {
		opts = append(opts, bandit.WithSource(stratSrc))
	}
	strategy, err := bandit.New(e.Strategy, len(e.Arms), e.Params, opts...)
	if err != nil {
		return nil, nil, sim.Config{}, err
	}
	sources, err := reward.Build(e.Arms, rewardSrc)
	if err != nil {
		return nil, nil, sim.Config{}, err
	}
	cfg := sim.Config{
		Horizon:      e.Horizon,
		Replications: e.Replications,
		Stopping:     e.Stopping,
		Observer:     observer,
	}
	return strategy, sources, cfg, nil
}

// ParseExperiment decodes data as JSON or YAML, applies defaults and validates.
func ParseExperiment(data []byte, format string) (*Experiment, error) {
	var exp Experiment
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &exp); err != nil {
			return nil, fmt.Errorf("decode experiment json: %w", err)
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &exp); err != nil {
			return nil, fmt.Errorf("decode experiment yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported experiment format %q", format)
	}
	exp.ApplyDefaults()
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

// LoadExperiment reads an experiment file; the extension selects the format.
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment: %w", err)
	}
	exp, err := ParseExperiment(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}
