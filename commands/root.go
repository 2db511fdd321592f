package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cfg "github.com/maastricht-university/eaf2kaldi/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

// NewRootCmd builds the command tree with its own configuration state.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "eaf2kaldi",
		Short: "Convert ELAN annotation files into Kaldi corpus files",
		Long: `eaf2kaldi - turn ELAN (.eaf) word tiers into Kaldi data files.

For every annotation file matching the corpus pattern, four files are
written next to it using the recording's base name:

  <recording>.segments   utterance -> recording, start, end
  <recording>.text       utterance -> transcript
  <recording>.utt2spk    utterance -> speaker
  <recording>.speakers   speakers of the recording

Configuration is read from --config, config/$CONFIG_ENV/config.yaml or
./eaf2kaldi.yaml, and EAF2KALDI_* environment variables.

Examples:
  eaf2kaldi convert
  eaf2kaldi convert --root /data/eduskunta --terminators '.?!'
  eaf2kaldi speaker "valtiovarainministeri Matti Meikäläinen"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	mustBindFlag(a.v, "pipeline.log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newConvertCmd(a),
		newSpeakerCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command. Cancelling ctx stops a batch between
// recordings.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// mustBindFlag binds flag to key and panics when the flag does not exist.
func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

func (a *app) load() (*cfg.Root, error) {
	return cfg.Load(a.v, a.cfgFile)
}

func (a *app) logger(c *cfg.Root, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(c.Pipeline.LogLvl)
	if err != nil {
		lvl = logrus.InfoLevel
		log.WithField("log_level", c.Pipeline.LogLvl).Warn("unknown log level, using info")
	}
	if a.verbose {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log
}
