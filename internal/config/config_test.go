package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csg33k/response-viewer/internal/history"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:5000", cfg.GradingAPIURL)
	assert.Equal(t, "viewer.db", cfg.DBPath)
	assert.Equal(t, "https://ans.app/results/%d", cfg.ResultsURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.Debug)

	b, err := cfg.Boundary()
	require.NoError(t, err)
	assert.Equal(t, history.BoundaryOneIndexed, b)
}

func TestFromEnv_Values(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":            "9000",
		"GRADING_API_URL": "http://grader:5000",
		"REQUEST_TIMEOUT": "5s",
		"NAV_BOUNDARY":    "legacy",
		"DEBUG":           "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "http://grader:5000", cfg.GradingAPIURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Debug)

	b, err := cfg.Boundary()
	require.NoError(t, err)
	assert.Equal(t, history.BoundaryLegacy, b)
}

func TestFromEnv_Invalid(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"REQUEST_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "REQUEST_TIMEOUT")

	_, err = FromEnv(env(map[string]string{"DEBUG": "maybe"}))
	assert.ErrorContains(t, err, "DEBUG")

	cfg, err := FromEnv(env(map[string]string{"NAV_BOUNDARY": "zero"}))
	require.NoError(t, err)
	_, err = cfg.Boundary()
	assert.Error(t, err)
}

func TestMergeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"grading_api_url: http://other:5000\nrequest_timeout: 2m\nnav_boundary: legacy\n"), 0o600))

	cfg, err := FromEnv(env(map[string]string{"PORT": "9000"}))
	require.NoError(t, err)
	require.NoError(t, cfg.MergeFile(path))

	assert.Equal(t, "9000", cfg.Port, "unset file values keep the environment")
	assert.Equal(t, "http://other:5000", cfg.GradingAPIURL)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "legacy", cfg.NavBoundary)

	assert.Error(t, cfg.MergeFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
