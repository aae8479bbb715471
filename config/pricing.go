package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/randalmurphal/council/model"
)

// pricingFile is the TOML layout of a pricing override:
//
//	[models.claude-sonnet]
//	model = "claude-sonnet-4-20250514"
//	input_per_million = 3.0
//	output_per_million = 15.0
type pricingFile struct {
	Models map[string]model.Price `toml:"models"`
}

// LoadPricing decodes the TOML file at path and returns base with the file's
// entries applied. Unknown keys are an error. A nil base uses the built-in
// table.
func LoadPricing(path string, base *model.PricingTable) (*model.PricingTable, error) {
	if base == nil {
		base = model.DefaultPricing()
	}
	var f pricingFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("load pricing: unknown keys: %s", strings.Join(keys, ", "))
	}

	overrides := make(map[model.ModelName]model.Price, len(f.Models))
	for alias, p := range f.Models {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 || p.PerSearch < 0 {
			return nil, fmt.Errorf("load pricing: %s: negative price", alias)
		}
		overrides[model.ModelName(alias)] = p
	}
	return base.With(overrides), nil
}

// WatchPricing reloads the pricing file whenever it is written and passes
// each new table to fn. A file that fails to load is logged and the previous
// table stays in effect. It blocks until ctx is done.
func WatchPricing(ctx context.Context, path string, base *model.PricingTable, fn func(*model.PricingTable), logger *slog.Logger) error {
	if fn == nil {
		return errors.New("watch pricing: callback is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch pricing: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch pricing: %w", err)
	}
	name := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			table, err := LoadPricing(path, base)
			if err != nil {
				logger.Warn("pricing reload failed, keeping previous table",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			logger.Info("pricing reloaded", slog.String("path", path))
			fn(table)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("pricing watcher error", slog.String("error", err.Error()))
		}
	}
}
