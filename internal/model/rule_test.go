package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload RulePayload
	}{
		{
			name:    "category payload",
			payload: CategoryPayload{Merchant: "blue bottle", Category: "Coffee Shops"},
		},
		{
			name:    "threshold payload",
			payload: ThresholdPayload{GroupKey: "groceries", Answer: "anomaly", Mean: 52.5, StdDev: 9.8, K: 2.0},
		},
		{
			name:    "keyword payload",
			payload: KeywordPayload{Answer: "spending_query", Keywords: []string{"food", "spend"}},
		},
		{
			name: "time window payload",
			payload: TimeWindowPayload{
				Answer:    "morning_review",
				Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
				StartHour: 6,
				EndHour:   9,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := Rule{
				ID:          "rule-1",
				ModuleID:    "category",
				Key:         "blue bottle",
				Source:      RuleSourceUserLearned,
				Payload:     tt.payload,
				Confidence:  0.85,
				Priority:    10,
				SampleCount: 12,
				CreatedAt:   created,
			}

			data, err := json.Marshal(original)
			require.NoError(t, err)

			var decoded Rule
			require.NoError(t, json.Unmarshal(data, &decoded))

			assert.Equal(t, original.ID, decoded.ID)
			assert.Equal(t, original.Key, decoded.Key)
			assert.Equal(t, original.Source, decoded.Source)
			assert.InDelta(t, original.Confidence, decoded.Confidence, 1e-9)
			assert.Equal(t, tt.payload, decoded.Payload)
			assert.Equal(t, tt.payload.Result(), decoded.Payload.Result())
		})
	}
}

func TestRuleUnmarshalUnknownPayloadKind(t *testing.T) {
	data := []byte(`{"id":"r","module_id":"m","key":"k","source":"user_learned",` +
		`"confidence":0.9,"payload":{"kind":"mystery","payload":{}}}`)

	var decoded Rule
	err := json.Unmarshal(data, &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown payload kind")
}

func TestThresholdPayloadThreshold(t *testing.T) {
	p := ThresholdPayload{Mean: 50, StdDev: 10, K: 2}
	assert.InDelta(t, 70.0, p.Threshold(), 1e-9)
}

func TestTimeWindowContains(t *testing.T) {
	tests := []struct {
		name    string
		payload TimeWindowPayload
		hour    int
		weekday time.Weekday
		want    bool
	}{
		{
			name:    "inside simple window",
			payload: TimeWindowPayload{StartHour: 6, EndHour: 9},
			hour:    7, weekday: time.Monday,
			want: true,
		},
		{
			name:    "outside simple window",
			payload: TimeWindowPayload{StartHour: 6, EndHour: 9},
			hour:    14, weekday: time.Monday,
			want: false,
		},
		{
			name:    "wraps midnight late side",
			payload: TimeWindowPayload{StartHour: 22, EndHour: 2},
			hour:    23, weekday: time.Friday,
			want: true,
		},
		{
			name:    "wraps midnight early side",
			payload: TimeWindowPayload{StartHour: 22, EndHour: 2},
			hour:    1, weekday: time.Saturday,
			want: true,
		},
		{
			name:    "wraps midnight excluded middle",
			payload: TimeWindowPayload{StartHour: 22, EndHour: 2},
			hour:    12, weekday: time.Friday,
			want: false,
		},
		{
			name: "weekday restriction",
			payload: TimeWindowPayload{
				StartHour: 6, EndHour: 9,
				Weekdays: []time.Weekday{time.Saturday, time.Sunday},
			},
			hour: 7, weekday: time.Tuesday,
			want: false,
		},
		{
			name: "weekday allowed",
			payload: TimeWindowPayload{
				StartHour: 6, EndHour: 9,
				Weekdays: []time.Weekday{time.Saturday, time.Sunday},
			},
			hour: 7, weekday: time.Sunday,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.payload.Contains(tt.hour, tt.weekday))
		})
	}
}

func TestRuleValidate(t *testing.T) {
	valid := func() Rule {
		return Rule{
			ID:         "r1",
			ModuleID:   "category",
			Key:        "k",
			Source:     RuleSourceUserLearned,
			Payload:    CategoryPayload{Merchant: "k", Category: "Other"},
			Confidence: 0.7,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr string
	}{
		{"valid", func(*Rule) {}, ""},
		{"missing ID", func(r *Rule) { r.ID = "" }, "rule ID is required"},
		{"missing module", func(r *Rule) { r.ModuleID = "" }, "module ID is required"},
		{"missing key", func(r *Rule) { r.Key = "" }, "rule key is required"},
		{"missing payload", func(r *Rule) { r.Payload = nil }, "payload is required"},
		{"confidence too high", func(r *Rule) { r.Confidence = 1.5 }, "outside [0,1]"},
		{"confidence negative", func(r *Rule) { r.Confidence = -0.1 }, "outside [0,1]"},
		{"bad source", func(r *Rule) { r.Source = "psychic" }, "unknown rule source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid()
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
