package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Corpus struct {
	Root    string `mapstructure:"root" yaml:"root"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}
type Segmenter struct {
	Terminators string `mapstructure:"terminators" yaml:"terminators"`
}
type Speakers struct {
	StripPatterns []string `mapstructure:"strip_patterns" yaml:"strip_patterns"`
}
type Suffixes struct {
	Segments string `mapstructure:"segments" yaml:"segments"`
	Text     string `mapstructure:"text" yaml:"text"`
	Utt2Spk  string `mapstructure:"utt2spk" yaml:"utt2spk"`
	Speakers string `mapstructure:"speakers" yaml:"speakers"`
}
type Output struct {
	Suffixes Suffixes `mapstructure:"suffixes" yaml:"suffixes"`
	// Seconds writes segment bounds as seconds instead of milliseconds.
	Seconds bool `mapstructure:"seconds" yaml:"seconds"`
}
type Root struct {
	Pipeline struct {
		Name      string `mapstructure:"name" yaml:"name"`
		LogLvl    string `mapstructure:"log_level" yaml:"log_level"`
		KeepGoing bool   `mapstructure:"keep_going" yaml:"keep_going"`
	} `mapstructure:"pipeline" yaml:"pipeline"`
	Corpus    Corpus    `mapstructure:"corpus" yaml:"corpus"`
	Segmenter Segmenter `mapstructure:"segmenter" yaml:"segmenter"`
	Speakers  Speakers  `mapstructure:"speakers" yaml:"speakers"`
	Output    Output    `mapstructure:"output" yaml:"output"`
	Paths     struct {
		Report string `mapstructure:"report" yaml:"report"`
	} `mapstructure:"paths" yaml:"paths"`
}

const EnvPrefix = "EAF2KALDI"

var ErrInvalid = errors.New("config: invalid")

// SetDefaults registers the built-in values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "eaf2kaldi")
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("pipeline.keep_going", false)
	v.SetDefault("corpus.root", ".")
	v.SetDefault("corpus.pattern", "20*/*/*.eaf")
	v.SetDefault("segmenter.terminators", ".")
	v.SetDefault("speakers.strip_patterns", []string{`/.*`, `.*ministeri `})
	v.SetDefault("output.suffixes.segments", ".segments")
	v.SetDefault("output.suffixes.text", ".text")
	v.SetDefault("output.suffixes.utt2spk", ".utt2spk")
	v.SetDefault("output.suffixes.speakers", ".speakers")
	v.SetDefault("output.seconds", false)
	v.SetDefault("paths.report", "")
}

// Default returns the built-in configuration.
func Default() *Root {
	v := viper.New()
	SetDefaults(v)
	var cfg Root
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load resolves the configuration from v: bound flags, EAF2KALDI_*
// environment variables, the config file and defaults, in that order.
// An empty file means the first of config/<CONFIG_ENV>/config.yaml and
// eaf2kaldi.yaml that exists, if any.
func Load(v *viper.Viper, file string) (*Root, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		file = guess()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{
		filepath.Join("config", env, "config.yaml"),
		"eaf2kaldi.yaml",
	} {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// Validate checks the values the converter cannot run without.
func (c *Root) Validate() error {
	if c.Corpus.Pattern == "" {
		return fmt.Errorf("%w: corpus.pattern is empty", ErrInvalid)
	}
	if c.Segmenter.Terminators == "" {
		return fmt.Errorf("%w: segmenter.terminators is empty", ErrInvalid)
	}
	for _, p := range c.Speakers.StripPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: speakers.strip_patterns: %v", ErrInvalid, err)
		}
	}
	seen := map[string]bool{}
	for _, s := range []string{c.Output.Suffixes.Segments, c.Output.Suffixes.Text, c.Output.Suffixes.Utt2Spk, c.Output.Suffixes.Speakers} {
		if s == "" {
			return fmt.Errorf("%w: empty output suffix", ErrInvalid)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate output suffix %q", ErrInvalid, s)
		}
		seen[s] = true
	}
	return nil
}

// Pattern joins the corpus root and the glob pattern.
func (c *Root) Pattern() string {
	if c.Corpus.Root == "" || c.Corpus.Root == "." || filepath.IsAbs(c.Corpus.Pattern) {
		return c.Corpus.Pattern
	}
	return filepath.Join(c.Corpus.Root, c.Corpus.Pattern)
}
