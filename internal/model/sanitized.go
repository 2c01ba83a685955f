package model

import "time"

// SanitizedPattern is the privacy-safe projection of a sample or rule that may
// leave the device. Every field is bucketed, truncated, or hashed; nothing in
// it can be inverted back to the originating user, merchant, or exact amount.
type SanitizedPattern struct {
	ReportedAt     time.Time    `json:"reported_at"`
	UserHash       string       `json:"user_hash"`
	ModuleID       string       `json:"module_id"`
	DomainKey      string       `json:"domain_key"`
	Bucket         string       `json:"bucket,omitempty"`
	Label          string       `json:"label,omitempty"`
	ConfidenceBand string       `json:"confidence_band"`
	Weekday        time.Weekday `json:"weekday"`
	HourOfDay      int          `json:"hour_of_day"`
}
