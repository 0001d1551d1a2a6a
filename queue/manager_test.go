package queue

import (
	"testing"

	"github.com/xraph/router/id"
)

func TestAllowOfferUnconfigured(t *testing.T) {
	t.Parallel()

	m := NewManager()
	if !m.AllowOffer(id.NewQueueID()) {
		t.Fatal("unconfigured queue should be unthrottled")
	}
}

func TestAllowOfferBurst(t *testing.T) {
	t.Parallel()

	qid := id.NewQueueID()
	m := NewManager(Config{QueueID: qid, OfferRate: 0.001, OfferBurst: 2})

	if !m.AllowOffer(qid) {
		t.Fatal("first offer within burst should pass")
	}
	if !m.AllowOffer(qid) {
		t.Fatal("second offer within burst should pass")
	}
	if m.AllowOffer(qid) {
		t.Fatal("offer beyond burst should be throttled")
	}
}

func TestAllowOfferDefaultBurst(t *testing.T) {
	t.Parallel()

	qid := id.NewQueueID()
	m := NewManager(Config{QueueID: qid, OfferRate: 0.001})

	if !m.AllowOffer(qid) {
		t.Fatal("burst should default to 1")
	}
	if m.AllowOffer(qid) {
		t.Fatal("second immediate offer should be throttled")
	}
}

func TestSetConfig(t *testing.T) {
	t.Parallel()

	qid := id.NewQueueID()
	m := NewManager(Config{QueueID: qid, OfferRate: 0.001, OfferBurst: 1})

	if !m.AllowOffer(qid) {
		t.Fatal("first offer should pass")
	}
	if m.AllowOffer(qid) {
		t.Fatal("should be throttled before reconfigure")
	}

	// Reconfigure with no rate: unthrottled again.
	m.SetConfig(Config{QueueID: qid})
	if !m.AllowOffer(qid) {
		t.Fatal("reconfigured queue should be unthrottled")
	}
}
