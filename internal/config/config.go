// Package config holds ambient defaults for knobs left to the
// implementation (ring batch size, cache-population fan-out, default
// page-size power). CLI positional arguments always win; this only fills
// in what they don't cover.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/L-v-M/async/internal/xlog"
)

// IORing carries the ambient I/O-ring knobs.
type IORing struct {
	// BatchSize is B in "process_batch(B)"; canonical value is 8.
	BatchSize int `tag:"batchSize"`
	// CacheFanOut is K in cache population; canonical value is 64.
	CacheFanOut int `tag:"cacheFanOut"`
}

// Page carries the ambient page-layout knob.
type Page struct {
	SizePower int `tag:"sizePower"`
}

type Config struct {
	IORing IORing `tag:"ioring"`
	Page   Page   `tag:"page"`
}

func defaults() *Config {
	return &Config{
		IORing: IORing{BatchSize: 8, CacheFanOut: 64},
		Page:   Page{SizePower: 16},
	}
}

var searchPaths = []string{".", "etc/async"}
var fileName = "pagesrv.toml"

// Load returns the ambient configuration, overlaying a pagesrv.toml found
// on searchPaths (if any) on top of built-in defaults, the same two-step
// "defaults, then an optional file" shape cmd/tester's loadConfig uses
// for tester.toml.
func Load() *Config {
	cfg := defaults()
	for _, dir := range searchPaths {
		fpath := filepath.Join(dir, fileName)
		if !fileIsValid(fpath) {
			continue
		}
		if _, err := toml.DecodeFile(fpath, cfg); err != nil {
			xlog.Warn("config file decode failed")
			continue
		}
		break
	}
	bindViperDefaults(cfg)
	return cfg
}

func fileIsValid(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

// bindViperDefaults registers the resolved values with viper so cobra
// subcommands across the three CLIs can read a single shared source of
// ambient truth via viper.GetInt, matching cmd/tester/main.go's
// viper.BindPFlag pattern even though these three binaries take no flags
// of their own.
func bindViperDefaults(cfg *Config) {
	viper.SetDefault("ioring.batchSize", cfg.IORing.BatchSize)
	viper.SetDefault("ioring.cacheFanOut", cfg.IORing.CacheFanOut)
	viper.SetDefault("page.sizePower", cfg.Page.SizePower)
}
