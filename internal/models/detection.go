// Package models contains the core domain types.
package models

import (
	"errors"
	"time"
)

// Domain errors surfaced by the redaction pipeline.
var (
	ErrNoText         = errors.New("no text provided")
	ErrNoCategories   = errors.New("no categories selected")
	ErrRecordNotFound = errors.New("record not found")
	ErrEmptyAPIKey    = errors.New("API key cannot be empty")
	ErrNotConfigured  = errors.New("secondary model not configured")
)

// DetectedItem is one piece of sensitive information found by the model.
type DetectedItem struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Category  string `json:"category"`
	Reason    string `json:"reason"`
	Redaction string `json:"redaction"`
}

// DetectionResult is the parsed model output of one detection call.
type DetectionResult struct {
	Detected     []DetectedItem `json:"detected_sensitive_data"`
	RedactedText string         `json:"redacted_text"`
}

// RedactionRecord is one entry in the redaction history. It carries run
// metadata only; input text and detected values are never persisted.
type RedactionRecord struct {
	ID            int64     `json:"id"`
	RequestID     string    `json:"request_id"`
	Categories    []string  `json:"categories"`
	DetectedCount int       `json:"detected_count"`
	Outcome       string    `json:"outcome"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Outcome values recorded in the redaction history.
const (
	OutcomeSuccess    = "success"
	OutcomeParseError = "parse_error"
	OutcomeCallError  = "call_error"
	OutcomeCacheHit   = "cache_hit"
)
