package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single turn in a chat conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PreferenceRecord represents a single human preference comparison.
// Records are immutable after creation and are persisted verbatim as one
// JSON line each in the collector's storage directory.
type PreferenceRecord struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`

	Prompt   string `json:"prompt"`
	Chosen   string `json:"chosen"`
	Rejected string `json:"rejected"`

	// Context metadata
	TaskCategory      string `json:"task_category"`
	Domain            string `json:"domain"`
	ConversationDepth int    `json:"conversation_depth"`

	// Quality signals (nil serializes as null)
	UserConfidence *float64 `json:"user_confidence"`
	ResponseTimeMS *int64   `json:"response_time_ms"`
}

// Metadata holds the optional context attached to a comparison or ranking
type Metadata struct {
	SessionID         string
	TaskCategory      string
	Domain            string
	ConversationDepth int
	UserConfidence    *float64
	ResponseTimeMS    *int64
}

// NewPreferenceRecord creates a record with a fresh unique ID and a UTC
// timestamp. Each call generates its own ID; identifiers are never shared
// between records.
func NewPreferenceRecord(prompt, chosen, rejected string, meta Metadata) PreferenceRecord {
	return PreferenceRecord{
		ID:                uuid.New().String(),
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:         meta.SessionID,
		Prompt:            prompt,
		Chosen:            chosen,
		Rejected:          rejected,
		TaskCategory:      meta.TaskCategory,
		Domain:            meta.Domain,
		ConversationDepth: meta.ConversationDepth,
		UserConfidence:    meta.UserConfidence,
		ResponseTimeMS:    meta.ResponseTimeMS,
	}
}

// ToMap returns the full field set as a plain mapping
func (r PreferenceRecord) ToMap() map[string]any {
	m := map[string]any{
		"id":                 r.ID,
		"timestamp":          r.Timestamp,
		"session_id":         r.SessionID,
		"prompt":             r.Prompt,
		"chosen":             r.Chosen,
		"rejected":           r.Rejected,
		"task_category":      r.TaskCategory,
		"domain":             r.Domain,
		"conversation_depth": r.ConversationDepth,
		"user_confidence":    nil,
		"response_time_ms":   nil,
	}
	if r.UserConfidence != nil {
		m["user_confidence"] = *r.UserConfidence
	}
	if r.ResponseTimeMS != nil {
		m["response_time_ms"] = *r.ResponseTimeMS
	}
	return m
}

// ToDPO returns the minimal mapping required for pairwise-preference training
func (r PreferenceRecord) ToDPO() DPORecord {
	return DPORecord{
		Prompt:   r.Prompt,
		Chosen:   r.Chosen,
		Rejected: r.Rejected,
	}
}

// DPORecord represents a standard DPO preference pair
type DPORecord struct {
	Prompt   string `json:"prompt"`
	Chosen   string `json:"chosen"`
	Rejected string `json:"rejected"`
}

// Stats summarizes the state of a collector's buffer and storage
type Stats struct {
	TotalRecords    int      `json:"total_records"`
	BufferedRecords int      `json:"buffered_records"`
	Domains         []string `json:"domains"`
	Categories      []string `json:"categories"`
}
