// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package events publishes discovery run lifecycle and batch progress
// events over Watermill.
//
// Two backends are available: an in-process Go channel (default) and core
// NATS for deployments that forward progress to other services. Payloads are
// JSON; the Watermill message UUID doubles as the event id.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/discover"
)

// Topic carries every discovery event.
const Topic = "discovery.progress"

// Type identifies what happened.
type Type string

const (
	TypeRunStarted   Type = "run_started"
	TypeStageDone    Type = "stage_completed"
	TypeRunCompleted Type = "run_completed"
	TypeRunFailed    Type = "run_failed"
	TypeBatchStep    Type = "batch_progress"
)

// Event is the payload of a discovery event. Run fields are empty for batch
// progress; Processed and Total are empty for run events.
type Event struct {
	ID        string             `json:"id"`
	Type      Type               `json:"type"`
	RunID     string             `json:"run_id,omitempty"`
	UserID    int64              `json:"user_id,omitempty"`
	MediaType discover.MediaType `json:"media_type,omitempty"`
	Stage     string             `json:"stage,omitempty"`
	Counts    discover.RunCounts `json:"counts"`
	Error     string             `json:"error,omitempty"`
	Processed int                `json:"processed,omitempty"`
	Total     int                `json:"total,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// RunEvent builds a lifecycle event for a run.
func RunEvent(t Type, run *discover.DiscoveryRun, stage string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		RunID:     run.ID,
		UserID:    run.UserID,
		MediaType: run.MediaType,
		Stage:     stage,
		Counts:    run.Counts,
		Error:     run.Error,
		Timestamp: time.Now().UTC(),
	}
}

// BatchEvent builds a batch progress event.
func BatchEvent(processed, total int) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      TypeBatchStep,
		Processed: processed,
		Total:     total,
		Timestamp: time.Now().UTC(),
	}
}
