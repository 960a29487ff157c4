package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

type sample struct {
	Name     string            `validate:"required"`
	Load     uint64            `validate:"gte=1"`
	Loads    []uint64          `mapstructure:"loads"`
	Period   time.Duration     `validate:"gt=0"`
	Tags     []string          `mapstructure:"tags"`
	Memory   resource.Quantity `mapstructure:"memory"`
	Sense    string            `validate:"oneof=min max"`
	Untagged int
}

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_DecodesWithHooks(t *testing.T) {
	path := writeFile(t, `
name: vote
load: 2k
loads: [100, 1Ki]
period: 1m30s
tags: a,b
memory: 1Gi
sense: max
`)
	cfg := sample{Untagged: 7}
	require.NoError(t, Load(path, &cfg))

	assert.Equal(t, "vote", cfg.Name)
	assert.Equal(t, uint64(2000), cfg.Load)
	assert.Equal(t, []uint64{100, 1024}, cfg.Loads)
	assert.Equal(t, 90*time.Second, cfg.Period)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	assert.True(t, resource.MustParse("1Gi").Equal(cfg.Memory))
	assert.Equal(t, 7, cfg.Untagged)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "name: vote\nload: 10\n")
	t.Setenv("CLIFFBENCH_LOAD", "20")
	var cfg sample
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, uint64(20), cfg.Load)
}

func TestLoad_MissingFile(t *testing.T) {
	var notFound *bencherrors.ErrNotFound
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &sample{})
	assert.ErrorAs(t, err, &notFound)
}

func TestLoad_FractionalLoad(t *testing.T) {
	path := writeFile(t, "load: \"1.5\"\n")
	var invalid *bencherrors.ErrInvalidArgument
	assert.ErrorAs(t, Load(path, &sample{}), &invalid)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sample{Name: "a", Load: 1, Period: time.Second, Sense: "min"}))

	err := Validate(sample{Load: 0, Sense: "sideways"})
	require.Error(t, err)
	var invalid *bencherrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, bencherrors.ExitInvalidArgument, bencherrors.ExitCodeFromError(err))
	assert.Contains(t, err.Error(), `"Name"`)
	assert.Contains(t, err.Error(), `"Load"`)
	assert.Contains(t, err.Error(), `"Period"`)
	assert.Contains(t, err.Error(), "must be one of min max")
}
