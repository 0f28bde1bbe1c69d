package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("roots and level", func(t *testing.T) {
		t.Setenv("FOODONTO_IN", "/data/onto")
		t.Setenv("FOODONTO_BUILD", "/data/build")
		t.Setenv("FOODONTO_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/data/onto", cfg.InputRoot)
		assert.Equal(t, "/data/build", cfg.BuildRoot)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("strict allowlist parses bools", func(t *testing.T) {
		t.Setenv("FOODONTO_STRICT_ALLOWLIST", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Families.StrictAllowlist)
	})

	t.Run("unparseable bool is ignored", func(t *testing.T) {
		t.Setenv("FOODONTO_STRICT_ALLOWLIST", "sometimes")
		cfg := &Config{Families: FamiliesConfig{StrictAllowlist: true}}
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Families.StrictAllowlist)
	})

	t.Run("empty values leave config alone", func(t *testing.T) {
		t.Setenv("FOODONTO_BUILD", "")
		cfg := &Config{BuildRoot: "keep"}
		cfg.applyEnvOverrides()
		assert.Equal(t, "keep", cfg.BuildRoot)
	})
}
