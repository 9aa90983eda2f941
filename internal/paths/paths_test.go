package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseDirDefault(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".smartcart"), BaseDir())
}

func TestLayout(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	assert.Equal(t, filepath.Join(base, "profiles", "main"), ProfileDir("main"))
	assert.Equal(t, filepath.Join(base, "profiles", "work", "cache.db"), CachePath("work"))
	assert.Equal(t, filepath.Join(base, "profiles", "work", "logs", "smartcart.log"), LogPath("work"))
	assert.Equal(t, filepath.Join(base, "server", "logs", "smartcartd.log"), ServerLogPath())
	assert.Equal(t, filepath.Join(base, "config.toml"), ConfigPath())
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	require.NoError(t, EnsureDir("test"))

	info, err := os.Stat(LogDir("test"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid single char", "a", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateName(%q) error = %v", tt.input, err)
		})
	}
}

func TestResolve(t *testing.T) {
	got, err := Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, got)

	got, err = Resolve("", "home")
	require.NoError(t, err)
	assert.Equal(t, "home", got)

	got, err = Resolve("work", "home")
	require.NoError(t, err)
	assert.Equal(t, "work", got)

	_, err = Resolve("../etc", "")
	assert.Error(t, err)
}
