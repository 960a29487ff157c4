package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

const EnvPrefix = "CLIFFBENCH"

// Load reads the YAML file at path and unmarshals it over cfg, which should already hold the defaults. Values can
// be overridden by environment variables, e.g. CLIFFBENCH_POLICY_MINSUCCESSRATIO. cfg is not validated.
func Load(path string, cfg interface{}) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&bencherrors.ErrNotFound{Type: "configuration file", Value: path})
		}
		return errors.WithStack(err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := v.Unmarshal(cfg, CustomHooks...); err != nil {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "config", Value: path, Message: err.Error()})
	}
	return nil
}
