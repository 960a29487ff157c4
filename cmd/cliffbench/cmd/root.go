package cmd

import (
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
	"github.com/G-Research/cliffbench/internal/common/config"
	"github.com/G-Research/cliffbench/internal/common/logging"
)

const (
	logLevelKey  = "logLevel"
	logFormatKey = "logFormat"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "cliffbench",
		Short: "cliffbench finds the load at which a service stops keeping up.",
		Long: `cliffbench finds the load at which a service stops keeping up.

Persistent settings can be saved in a config file so they don't have to be specified every command.

Example structure:
logLevel: debug
metricsPort: 9090
extract:
  default: [writes, reads]
  byFilename:
    client0: [submits]

The location of this file can be passed in using the --config argument.
If not provided, $HOME/.cliffbench.yaml is used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(v, cfgFile); err != nil {
				return err
			}
			err := logging.Configure(logging.Config{
				Level:  v.GetString(logLevelKey),
				Format: v.GetString(logFormatKey),
			}, cmd.ErrOrStderr())
			if err != nil {
				return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "log", Value: v.GetString(logLevelKey) + "/" + v.GetString(logFormatKey), Message: err.Error()})
			}
			if used := v.ConfigFileUsed(); used != "" {
				log.Debugf("using config file %s", used)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cliffbench.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	cmd.PersistentFlags().String("log-format", logging.FormatPlain, "log format: plain, text or json")
	mustBind(v, logLevelKey, cmd.PersistentFlags().Lookup("log-level"))
	mustBind(v, logFormatKey, cmd.PersistentFlags().Lookup("log-format"))

	cmd.AddCommand(
		exploreCmd(v),
		extractCmd(v),
	)
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return run(RootCmd(), os.Args[1:])
}

func run(cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		log.Error(err)
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Debug("command failed")
	}
	return bencherrors.ExitCodeFromError(err)
}

// loadConfigFile reads cfgFile, or $HOME/.cliffbench.yaml if cfgFile is empty. Only the default file may be missing.
func loadConfigFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "error getting user home directory")
		}
		v.AddConfigPath(home)
		v.SetConfigName(".cliffbench")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case cfgFile == "" && errors.As(err, &notFound):
			return nil
		case os.IsNotExist(err):
			return errors.WithStack(&bencherrors.ErrNotFound{Type: "config file", Value: cfgFile})
		default:
			return errors.Wrapf(err, "error reading config file %s", v.ConfigFileUsed())
		}
	}
	return nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
