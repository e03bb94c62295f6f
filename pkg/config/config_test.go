package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, []int{6, 7, 8}, cfg.School.Grades)
	assert.Contains(t, cfg.School.Subjects, "Mathematics")
	assert.Equal(t, 300, cfg.QR.ImageSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scanner.Cooldown)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("GRADES", "6, 7")
	t.Setenv("SCANNER_COOLDOWN", "2s")
	t.Setenv("QR_IMAGE_SIZE", "-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, []int{6, 7}, cfg.School.Grades)
	assert.Equal(t, 2*time.Second, cfg.Scanner.Cooldown)
	assert.Equal(t, 300, cfg.QR.ImageSize)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
	assert.Equal(t, []int{1, 3}, parseInts("1,x,3"))
	assert.Nil(t, splitAndTrim(""))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
