package model

import "time"

// Report is one persisted what-if result together with the source it ran against.
type Report struct {
	ID         string       `json:"id" yaml:"id"`
	Source     Path         `json:"source" yaml:"source"`
	SourceHash string       `json:"sourceHash" yaml:"source_hash"`
	SavedAt    time.Time    `json:"savedAt" yaml:"saved_at"`
	Result     WhatIfResult `json:"result" yaml:"result"`
}
