package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 6, cfg.Recommend.RelatedLimit)
	assert.InDelta(t, 0.3, cfg.Recommend.PriceBand, 1e-9)
	assert.Equal(t, 5, cfg.Recommend.RecentLimit)
	assert.Equal(t, 8, cfg.Recommend.InterestLimit)
	assert.Equal(t, 8, cfg.Recommend.TrendingLimit)
	assert.Equal(t, 3, cfg.Recommend.TopCategories)
	assert.Equal(t, 3*time.Second, cfg.Recommend.SectionTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Recommend.IndexCacheTTL)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "upstream", cfg.CatalogSource)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
catalog_source: postgres
store:
  backend: badger
recommend:
  related_limit: 4
  section_timeout: 1s
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Chdir(dir)

	t.Setenv("RECOMMEND_TRENDING_LIMIT", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.CatalogSource)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Recommend.RelatedLimit)
	assert.Equal(t, time.Second, cfg.Recommend.SectionTimeout)
	assert.Equal(t, 12, cfg.Recommend.TrendingLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "sqlite" }, wantErr: true},
		{name: "unknown catalog source", mutate: func(c *Config) { c.CatalogSource = "csv" }, wantErr: true},
		{name: "zero related limit", mutate: func(c *Config) { c.Recommend.RelatedLimit = 0 }, wantErr: true},
		{name: "band out of range", mutate: func(c *Config) { c.Recommend.PriceBand = 1.5 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "mirrors without base url", mutate: func(c *Config) {
			c.Upstream.BaseURL = ""
			c.Upstream.Mirrors = []string{"http://mirror-1:9000/api"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecode_InvalidValue(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("store.backend", "floppy")

	_, err := decode(v)
	assert.Error(t, err)
}
