package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

func TestLogger_Configure(t *testing.T) {
	// Configure replaces the process-wide default logger; restore it afterwards
	orig := logging.Default()
	t.Cleanup(func() { logging.SetDefault(orig) })

	t.Run("rejects invalid level", func(t *testing.T) {
		cfg := config.NewLoggerForTest("verbose", "console", "stdout")
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		cfg := config.NewLoggerForTest("info", "xml", "stdout")
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("configures stdout console logger", func(t *testing.T) {
		cfg := config.NewLoggerForTest("debug", "console", "stdout")
		closer, err := cfg.Configure()
		gt.NoError(t, err)
		closer()
	})

	t.Run("writes JSON logs to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mnemosyne.log")
		cfg := config.NewLoggerForTest("info", "json", path)
		closer, err := cfg.Configure()
		gt.NoError(t, err)

		logging.Default().Info("hello from test")
		closer()

		data, err := os.ReadFile(path)
		gt.NoError(t, err)
		gt.Bool(t, strings.Contains(string(data), "hello from test")).True()
	})
}
