// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/agentdeck/agentdeck/agentapi"
)

// counters tallies dropped input. The reconciler owns one set; the
// dispatcher shares it so Stats covers both layers.
type counters struct {
	malformedFrames atomic.Uint64
	unknownKinds    atomic.Uint64
	orphanParts     atomic.Uint64
}

// Stats is a point-in-time snapshot of everything the mirror has
// dropped. Steadily climbing MalformedFrames means a server/console
// version skew; OrphanParts spikes briefly around reconnects and
// compactions and is otherwise near zero.
type Stats struct {
	// MalformedFrames counts frames that failed to decode.
	MalformedFrames uint64
	// UnknownKinds counts well-formed events outside the known set.
	UnknownKinds uint64
	// OrphanParts counts parts dropped because no cached message owns them.
	OrphanParts uint64
}

// Dispatcher turns raw frames into reconciler calls. HandleFrame is
// the Manager's frame sink: synchronous and in arrival order, one
// frame at a time per channel. Bad input is counted and dropped, never
// fatal; the channel stays up.
type Dispatcher struct {
	reconciler *Reconciler
	logger     *slog.Logger
	counters   *counters
}

// NewDispatcher creates a Dispatcher feeding the given reconciler.
func NewDispatcher(reconciler *Reconciler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		reconciler: reconciler,
		logger:     logger,
		counters:   reconciler.counters,
	}
}

// HandleFrame decodes one frame and applies it.
func (d *Dispatcher) HandleFrame(key ChannelKey, data []byte) {
	event, err := agentapi.DecodeEvent(data)
	if err != nil {
		if errors.Is(err, agentapi.ErrUnknownKind) {
			d.counters.unknownKinds.Add(1)
			d.logger.Debug("skipping unknown event kind",
				"endpoint", key.Endpoint,
				"directory", key.Directory,
				"error", err)
			return
		}
		d.counters.malformedFrames.Add(1)
		d.logger.Warn("dropping malformed frame",
			"endpoint", key.Endpoint,
			"directory", key.Directory,
			"size", len(data),
			"error", err)
		return
	}
	d.reconciler.Apply(key, event)
}

// Stats returns a snapshot of the drop counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		MalformedFrames: d.counters.malformedFrames.Load(),
		UnknownKinds:    d.counters.unknownKinds.Load(),
		OrphanParts:     d.counters.orphanParts.Load(),
	}
}
