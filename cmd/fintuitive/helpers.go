package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/engine"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/storage"
)

// openEngine builds the engine from configuration. The returned cleanup
// closes the report queue and the store.
func openEngine() (*engine.Engine, func(), error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DatabasePath()
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, common.NewUserError(fmt.Sprintf("failed to open learning database at %s", dbPath), err)
	}
	if err := store.Migrate(rootCmd.Context()); err != nil {
		_ = store.Close()
		return nil, nil, common.NewUserError("failed to upgrade the learning database schema", err)
	}

	eng, err := engine.New(engine.Options{
		Store:  store,
		Params: loadParams(),
		UserID: viper.GetString("user"),
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		eng.Close()
		_ = store.Close()
	}
	return eng, cleanup, nil
}

// loadParams overlays any configured tuning knobs on the defaults.
func loadParams() config.Params {
	params := config.DefaultParams()

	if v := viper.GetInt("learning.max_samples"); v > 0 {
		params.MaxSamples = v
	}
	if v := viper.GetInt("learning.max_rules"); v > 0 {
		params.MaxRules = v
	}
	if v := viper.GetFloat64("learning.min_confidence"); v > 0 {
		params.MinConfidence = v
	}
	if v := viper.GetFloat64("learning.decay_factor"); v > 0 {
		params.DecayFactor = v
	}
	if v := viper.GetInt("collaborative.k_anonymity"); v > 0 {
		params.KAnonymity = v
	}
	if v := viper.GetFloat64("collaborative.publish_threshold"); v > 0 {
		params.PublishThreshold = v
	}
	if v := viper.GetDuration("collaborative.insight_ttl"); v > 0 {
		params.InsightTTL = v
	}
	if v := viper.GetDuration("learning.retention_window"); v > 0 {
		params.RetentionWindow = v
	}
	return params
}

// parseFeatures converts key=value pairs into a typed feature map. Numeric
// values become number features; comma-joined values under "keywords" become
// a keyword set; everything else is a string feature.
func parseFeatures(pairs []string) (model.Features, error) {
	features := model.Features{}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid feature %q, expected key=value", pair)
		}
		if key == "keywords" {
			features[key] = model.KeywordsFeature(strings.Split(value, ",")...)
			continue
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			features[key] = model.NumberFeature(n)
			continue
		}
		features[key] = model.StringFeature(value)
	}
	return features, nil
}

// formatDuration renders durations compactly for tables.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
