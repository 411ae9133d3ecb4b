package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "forgewire dev (none) go"), out)
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	key, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	out, err = run(t, "keygen", "-n", "16")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 32)

	_, err = run(t, "keygen", "-n", "4")
	assert.Error(t, err)
}

func TestGenerateAndClean(t *testing.T) {
	dir := t.TempDir()
	src := `package widgets

import (
	"context"

	"github.com/pthm/forgewire"
)

//wire:component widget
type Widget struct {
	On bool ` + "`wire:\"on\"`" + `
}

//wire:action
func (w *Widget) Toggle(ctx context.Context, args forgewire.Args) forgewire.Result {
	w.On = !w.On
	return forgewire.OK()
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.go"), []byte(src), 0o644))
	generated := filepath.Join(dir, "widget_wire.go")

	out, err := run(t, "generate", "--dry-run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "generating "+generated)
	assert.NoFileExists(t, generated)

	_, err = run(t, "generate", dir)
	require.NoError(t, err)
	data, err := os.ReadFile(generated)
	require.NoError(t, err)
	assert.Contains(t, string(data), `b.Action("toggle", (*Widget).Toggle)`)

	_, err = run(t, "clean", dir)
	require.NoError(t, err)
	assert.NoFileExists(t, generated)
}

func TestServeRejectsMissingSecret(t *testing.T) {
	t.Setenv("FORGEWIRE_SECRET", "")
	_, err := run(t, "serve", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "secret not configured")
}
