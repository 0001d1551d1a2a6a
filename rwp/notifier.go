package rwp

import (
	"context"
	"log/slog"

	"github.com/xraph/router/ext"
	"github.com/xraph/router/worker"
)

// OfferNotifier is an engine extension that pushes offer lifecycle
// events to the connections bound to the offer's worker. Workers that
// are not connected simply miss the push; they observe the same state
// by fetching their worker snapshot.
type OfferNotifier struct {
	conns  *ConnectionManager
	logger *slog.Logger
}

var (
	_ ext.Extension    = (*OfferNotifier)(nil)
	_ ext.OfferIssued  = (*OfferNotifier)(nil)
	_ ext.OfferExpired = (*OfferNotifier)(nil)
	_ ext.OfferRevoked = (*OfferNotifier)(nil)
)

// NewOfferNotifier creates a notifier pushing to the server's
// connections.
func NewOfferNotifier(s *Server, logger *slog.Logger) *OfferNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfferNotifier{conns: s.Connections(), logger: logger}
}

func (n *OfferNotifier) Name() string { return "rwp-offer-notifier" }

func (n *OfferNotifier) OnOfferIssued(_ context.Context, o *worker.Offer) error {
	n.push(EventOfferIssued, o)
	return nil
}

func (n *OfferNotifier) OnOfferExpired(_ context.Context, o *worker.Offer) error {
	n.push(EventOfferExpired, o)
	return nil
}

func (n *OfferNotifier) OnOfferRevoked(_ context.Context, o *worker.Offer) error {
	n.push(EventOfferRevoked, o)
	return nil
}

func (n *OfferNotifier) push(event string, o *worker.Offer) {
	conns := n.conns.ForWorker(o.WorkerID.String())
	if len(conns) == 0 {
		return
	}

	frame, err := NewEventFrame(event, OfferEvent{
		OfferID:      o.ID.String(),
		JobID:        o.JobID.String(),
		WorkerID:     o.WorkerID.String(),
		Channel:      o.Channel,
		CapacityCost: o.CapacityCost,
		OfferedAt:    o.OfferedAt,
		ExpiresAt:    o.ExpiresAt,
	})
	if err != nil {
		n.logger.Warn("rwp: encode offer event", slog.String("error", err.Error()))
		return
	}

	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			n.logger.Debug("rwp: push offer event failed",
				slog.String("event", event),
				slog.String("conn_id", c.ID),
				slog.String("error", err.Error()))
		}
	}
}
