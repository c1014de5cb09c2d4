package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Duration parses human-readable durations ("30s", "5m") from yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("can't parse duration %q: %w", node.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LogLevel parses logrus level names from yaml.
type LogLevel logrus.Level

func (l *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	lvl, err := logrus.ParseLevel(node.Value)
	if err != nil {
		return fmt.Errorf("can't parse log level %q: %w", node.Value, err)
	}
	*l = LogLevel(lvl)
	return nil
}

func (l LogLevel) Level() logrus.Level {
	return logrus.Level(l)
}
