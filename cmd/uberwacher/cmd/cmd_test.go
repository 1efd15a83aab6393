package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/uberwacher/internal/config"
	"github.com/oshokin/uberwacher/internal/domain/motion"
)

func TestPrintSubscribers(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer

	printSubscribers(&out, "subs", []motion.Recipient{1, 2, 1})

	require.Equal(t, "subs: 3 entries\n  1\n  2\n  1 (duplicate)\n2 unique\n", out.String())

	out.Reset()
	printSubscribers(&out, "subs", nil)
	require.Equal(t, "subs: 0 entries\nno subscribers yet\n", out.String())
}

func TestConfigInit(t *testing.T) {
	color.NoColor = true

	path := filepath.Join(t.TempDir(), "uberwacher.toml")

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	// A second run refuses to overwrite.
	rootCmd.SetArgs([]string{"config", "init", path})
	require.ErrorIs(t, rootCmd.Execute(), errSettingsExist)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSubscribersCommand(t *testing.T) {
	color.NoColor = true

	path := filepath.Join(t.TempDir(), "subscribers")
	require.NoError(t, os.WriteFile(path, []byte("42\n7\n"), 0o600))

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"subscribers", "--subscribers", path})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "  42\n  7\n2 unique\n")
}
