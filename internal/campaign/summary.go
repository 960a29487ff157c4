package campaign

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/G-Research/cliffbench/internal/common/util"
	"github.com/G-Research/cliffbench/internal/experiment/httpload"
	"github.com/G-Research/cliffbench/internal/explore"
)

// Summary is the outcome of a campaign, as written to summary.yaml.
type Summary struct {
	Campaign  string         `yaml:"campaign"`
	RunID     string         `yaml:"runId"`
	Sense     string         `yaml:"sense"`
	Cancelled bool           `yaml:"cancelled"`
	Groups    []GroupSummary `yaml:"groups"`
}

type GroupSummary struct {
	Name     string `yaml:"name"`
	LastGood uint64 `yaml:"lastGood"`
	// Backfill lists the loads the group was re-measured at.
	Backfill []uint64 `yaml:"backfill,omitempty"`
	// Replayed is the best of those loads the group coped with.
	Replayed uint64 `yaml:"replayed,omitempty"`
}

func newSummary(campaign, runID string, sense explore.Sense, outcome *explore.Outcome[httpload.Workload]) *Summary {
	s := &Summary{
		Campaign:  campaign,
		RunID:     runID,
		Sense:     sense.String(),
		Cancelled: outcome.Cancelled,
		Groups:    make([]GroupSummary, len(outcome.Groups)),
	}
	for i, w := range outcome.Groups {
		s.Groups[i] = GroupSummary{
			Name:     w.Name,
			LastGood: outcome.LastGood[i],
			Replayed: outcome.Replayed[i],
		}
		if outcome.Backfill != nil {
			s.Groups[i].Backfill = outcome.Backfill[i]
		}
	}
	return s
}

func (s *Summary) WriteFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, data, 0o644))
}

func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &s, nil
}

// Table renders the summary for a terminal.
func (s *Summary) Table() string {
	t := util.NewTable("group", "last good", "backfill", "replayed")
	for _, g := range s.Groups {
		backfill, replayed := "-", "-"
		if len(g.Backfill) > 0 {
			backfill = explore.FormatLoads(g.Backfill)
			replayed = strconv.FormatUint(g.Replayed, 10)
		}
		t.Row(g.Name, strconv.FormatUint(g.LastGood, 10), backfill, replayed)
	}
	return t.String()
}
