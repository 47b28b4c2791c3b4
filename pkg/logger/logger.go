package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	Level        string `split_words:"true" default:"info"`
	PrettyFormat bool   `split_words:"true" default:"false"`
}

var DefaultConfig = &Config{
	Level: "info",
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// Init configures the global logger. Output goes to stderr so that command
// output on stdout stays clean.
func Init(opts ...Config) {
	conf := safe(opts...)

	var out io.Writer = os.Stderr
	if conf.PrettyFormat {
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr })
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(level(conf))
	log.Logger = log.Logger.With().Caller().Stack().Logger()
}

func level(conf *Config) zerolog.Level {
	if conf.Debug {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(conf.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
