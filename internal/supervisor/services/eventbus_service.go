// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/events"
)

// EventBus is the subscribe and close half of events.Bus.
type EventBus interface {
	Subscribe(ctx context.Context) (<-chan *events.Event, error)
	Close() error
}

// EventBusService logs discovery events from the bus and closes the bus on
// shutdown.
type EventBusService struct {
	bus    EventBus
	logger zerolog.Logger
	name   string
}

// NewEventBusService creates the wrapper.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEventBusService(bus EventBus, logger zerolog.Logger) *EventBusService {
	return &EventBusService{
		bus:    bus,
		logger: logger.With().Str("service", "events").Logger(),
		name:   "event-bus",
	}
}

// Serve implements suture.Service.
func (s *EventBusService) Serve(ctx context.Context) error {
	stream, err := s.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("event bus subscribe failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(ctx)
		case ev, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return s.shutdown(ctx)
				}
				// Ended without shutdown; the supervisor resubscribes.
				return errors.New("event stream closed")
			}
			s.log(ev)
		}
	}
}

func (s *EventBusService) shutdown(ctx context.Context) error {
	if err := s.bus.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("event bus close failed")
	}
	return ctx.Err()
}

func (s *EventBusService) log(ev *events.Event) {
	e := s.logger.Debug()
	if ev.Type == events.TypeRunFailed {
		e = s.logger.Warn().Str("error", ev.Error)
	}
	e.Str("type", string(ev.Type)).
		Str("run_id", ev.RunID).
		Int64("user_id", ev.UserID).
		Str("stage", ev.Stage).
		Msg("discovery event")
}

// String names the service in suture events.
func (s *EventBusService) String() string {
	return s.name
}
