package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValidate(t *testing.T) {
	params := DefaultParams()
	require.NoError(t, params.Validate())

	assert.Equal(t, 90*24*time.Hour, params.RetentionWindow)
	assert.Equal(t, 1000, params.MaxSamples)
	assert.Equal(t, 3, params.KAnonymity)
	assert.InDelta(t, 0.8, params.CleanupTarget, 1e-9)
	assert.InDelta(t, 0.8, params.PublishThreshold, 1e-9)
}

func TestValidateRejectsBadRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero max samples", func(p *Params) { p.MaxSamples = 0 }},
		{"zero max rules", func(p *Params) { p.MaxRules = 0 }},
		{"zero k-anonymity", func(p *Params) { p.KAnonymity = 0 }},
		{"cleanup target zero", func(p *Params) { p.CleanupTarget = 0 }},
		{"cleanup target above one", func(p *Params) { p.CleanupTarget = 1.2 }},
		{"negative min confidence", func(p *Params) { p.MinConfidence = -0.1 }},
		{"decay factor one", func(p *Params) { p.DecayFactor = 1 }},
		{"boost factor below one", func(p *Params) { p.BoostFactor = 0.9 }},
		{"collab discount zero", func(p *Params) { p.CollabDiscount = 0 }},
		{"publish threshold above one", func(p *Params) { p.PublishThreshold = 1.5 }},
		{"emerging multiplier one", func(p *Params) { p.EmergingMultiplier = 1 }},
		{"zero report batch", func(p *Params) { p.ReportBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.mutate(&params)
			assert.Error(t, params.Validate())
		})
	}
}
