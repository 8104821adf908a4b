package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "QUOTEBUILDER_HOME"

var Log = logrus.New()

// SetLogLevel maps a level name onto Log. Trace and panic are not offered.
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "info":
		Log.SetLevel(logrus.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		Log.SetLevel(logrus.FatalLevel)
	default:
		return fmt.Errorf("bad log level %q", level)
	}
	return nil
}

// SetLogFormat switches Log between logrus' text and JSON formatters.
func SetLogFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("bad log format %q", format)
	}
	return nil
}

// DataDir is where quotes and the local catalog live unless configured
// otherwise: $QUOTEBUILDER_HOME, else ~/.config/quotebuilder.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "quotebuilder"), nil
}
