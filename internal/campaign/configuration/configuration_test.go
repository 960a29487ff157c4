package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/cliffbench/internal/cliff"
	"github.com/G-Research/cliffbench/internal/common/bencherrors"
	"github.com/G-Research/cliffbench/internal/experiment/httpload"
	"github.com/G-Research/cliffbench/internal/explore"
)

func writeCampaign(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func validConfig() CampaignConfig {
	cfg := Default()
	cfg.Name = "vote"
	cfg.Groups = []httpload.Workload{{
		Name:     "small",
		Targets:  []httpload.Target{{URL: "http://localhost:8080/"}},
		Duration: time.Second,
	}}
	return cfg
}

func TestLoad(t *testing.T) {
	path := writeCampaign(t, `
name: vote
sense: max
search:
  start: 1k
  step: 500
  fillLeft: true
policy:
  maxMedianSojourn: 50ms
outputDir: out
groups:
  - name: small
    duration: 30s
    leading: [0]
    targets:
      - url: http://localhost:8080/vote
  - name: large
    duration: 1m
    connections: 16
    targets:
      - method: POST
        url: http://localhost:8080/vote
        body: x
        header:
          content-type: application/json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vote", cfg.Name)
	assert.Equal(t, explore.Max, cfg.SenseValue())
	assert.Equal(t, cliff.Config{Kind: cliff.KindExponential, Start: 1000, Step: 500, FillLeft: true, Resolution: 1}, cfg.Search.Cliff())
	assert.Equal(t, 50*time.Millisecond, cfg.Policy.MaxMedianSojourn)
	// Unset policy fields keep their defaults.
	assert.Equal(t, 0.99, cfg.Policy.MinSuccessRatio)
	assert.Equal(t, filepath.Join("out", "results.db"), cfg.ResultsPath)
	assert.Equal(t, 30*time.Second, cfg.ProgressInterval)

	require.Len(t, cfg.Groups, 2)
	assert.Equal(t, []uint64{0}, cfg.Groups[0].Leading)
	assert.Equal(t, 30*time.Second, cfg.Groups[0].Duration)
	assert.Equal(t, 16, cfg.Groups[1].Connections)
	assert.Equal(t, httpload.Target{
		Method: "POST",
		URL:    "http://localhost:8080/vote",
		Body:   "x",
		Header: map[string]string{"content-type": "application/json"},
	}, cfg.Groups[1].Targets[0])
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, bencherrors.ExitNotFound, bencherrors.ExitCodeFromError(err))
}

func TestLoad_Invalid(t *testing.T) {
	path := writeCampaign(t, "name: vote\ngroups: []\n")
	_, err := Load(path)
	assert.Equal(t, bencherrors.ExitInvalidArgument, bencherrors.ExitCodeFromError(err))
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		modify  func(*CampaignConfig)
		errText string
	}{
		"valid": {
			modify: func(*CampaignConfig) {},
		},
		"missing name": {
			modify:  func(c *CampaignConfig) { c.Name = "" },
			errText: `"Name"`,
		},
		"bad sense": {
			modify:  func(c *CampaignConfig) { c.Sense = "sideways" },
			errText: "must be one of min max",
		},
		"no groups": {
			modify:  func(c *CampaignConfig) { c.Groups = nil },
			errText: `"Groups"`,
		},
		"group without targets": {
			modify:  func(c *CampaignConfig) { c.Groups[0].Targets = nil },
			errText: `"Groups[0].Targets"`,
		},
		"bad target url": {
			modify:  func(c *CampaignConfig) { c.Groups[0].Targets[0].URL = "not a url" },
			errText: `"Groups[0].Targets[0].URL"`,
		},
		"duplicate group names": {
			modify:  func(c *CampaignConfig) { c.Groups = append(c.Groups, c.Groups[0]) },
			errText: "group names must be unique",
		},
		"min sense without rate": {
			modify: func(c *CampaignConfig) {
				c.Sense = "min"
				c.Search = SearchConfig{Kind: cliff.KindBinaryMin, Hi: 64, Resolution: 4}
			},
			errText: "a rate is required",
		},
		"unknown search kind": {
			modify:  func(c *CampaignConfig) { c.Search.Kind = "linear" },
			errText: `"Search.Kind"`,
		},
		"zero step": {
			modify:  func(c *CampaignConfig) { c.Search.Step = 0 },
			errText: "growth step must be positive",
		},
		"zero success ratio bound exceeded": {
			modify:  func(c *CampaignConfig) { c.Policy.MinSuccessRatio = 1.5 },
			errText: `"Policy.MinSuccessRatio"`,
		},
		"no priming attempts": {
			modify:  func(c *CampaignConfig) { c.Priming.Attempts = 0 },
			errText: `"Priming.Attempts"`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.errText == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
			assert.Equal(t, bencherrors.ExitInvalidArgument, bencherrors.ExitCodeFromError(err))
		})
	}
}
