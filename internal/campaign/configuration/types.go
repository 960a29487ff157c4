package configuration

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/cliffbench/internal/cliff"
	"github.com/G-Research/cliffbench/internal/common/bencherrors"
	"github.com/G-Research/cliffbench/internal/common/config"
	"github.com/G-Research/cliffbench/internal/experiment"
	"github.com/G-Research/cliffbench/internal/experiment/httpload"
	"github.com/G-Research/cliffbench/internal/explore"
)

const resultsFile = "results.db"

type CampaignConfig struct {
	// Name of the campaign, used to label runs in the results database.
	Name string `validate:"required"`
	// Either max, where bigger probe values are harder, or min.
	Sense  string `validate:"oneof=min max"`
	Search SearchConfig
	// Thresholds beyond which a probe counts as overloaded.
	Policy  experiment.Policy
	Priming httpload.PrimeConfig
	Groups  []httpload.Workload `validate:"required,min=1,dive"`
	// Histograms and the campaign summary are written here.
	OutputDir string `validate:"required"`
	// Path of the SQLite results database. Defaults to results.db in OutputDir.
	ResultsPath string
	// How often progress is logged while the campaign runs.
	ProgressInterval time.Duration `validate:"gt=0"`
}

// SearchConfig selects the searcher used for every group. See cliff.Config.
type SearchConfig struct {
	Kind       cliff.Kind `validate:"omitempty,oneof=exponential binarymin"`
	Start      uint64
	Step       uint64
	FillLeft   bool
	Inverted   bool
	Hi         uint64
	Resolution uint64
}

func (s SearchConfig) Cliff() cliff.Config {
	return cliff.Config{
		Kind:       s.Kind,
		Start:      s.Start,
		Step:       s.Step,
		FillLeft:   s.FillLeft,
		Inverted:   s.Inverted,
		Hi:         s.Hi,
		Resolution: s.Resolution,
	}
}

func Default() CampaignConfig {
	return CampaignConfig{
		Sense: explore.Max.String(),
		Search: SearchConfig{
			Kind:       cliff.KindExponential,
			Start:      100,
			Step:       100,
			Resolution: 1,
		},
		Policy:           experiment.DefaultPolicy(),
		Priming:          httpload.DefaultPrimeConfig(),
		OutputDir:        "results",
		ProgressInterval: 30 * time.Second,
	}
}

// Load reads the campaign file at path over the defaults and validates the result.
func Load(path string) (CampaignConfig, error) {
	cfg := Default()
	if err := config.Load(path, &cfg); err != nil {
		return cfg, err
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = filepath.Join(cfg.OutputDir, resultsFile)
	}
	return cfg, cfg.Validate()
}

// SenseValue returns the parsed sense. It must only be called on a validated configuration.
func (c CampaignConfig) SenseValue() explore.Sense {
	sense, _ := explore.ParseSense(c.Sense)
	return sense
}

// Validate checks field constraints and the rules that span several fields. Every violation is reported.
func (c CampaignConfig) Validate() error {
	var result *multierror.Error
	if err := config.Validate(c); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := c.Search.Cliff().New(nil); err != nil {
		result = multierror.Append(result, errors.WithMessage(err, "search"))
	}

	seen := make(map[string]bool, len(c.Groups))
	for i, group := range c.Groups {
		if seen[group.Name] {
			result = multierror.Append(result, invalid(fmt.Sprintf("Groups[%d].Name", i), group.Name, "group names must be unique"))
		}
		seen[group.Name] = true
		if c.Sense == explore.Min.String() && group.Rate == 0 {
			result = multierror.Append(result, invalid(fmt.Sprintf("Groups[%d].Rate", i), group.Rate, "a rate is required when the probe is a worker budget"))
		}
	}
	return result.ErrorOrNil()
}

func invalid(name string, value interface{}, message string) error {
	return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: name, Value: value, Message: message})
}
