package policy

import (
	"testing"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/worker"
)

func idleWorker(idleFor time.Duration) *worker.Worker {
	w := &worker.Worker{
		Entity:              router.NewEntity(),
		ID:                  id.NewWorkerID(),
		State:               worker.StateActive,
		Capacity:            10,
		MaxConcurrentOffers: 5,
		AvailableForOffers:  true,
	}
	last := time.Now().UTC().Add(-idleFor)
	w.LastAssignedAt = &last
	return w
}

func TestModeValid(t *testing.T) {
	t.Parallel()

	if !ModeLongestIdle.Valid() || !ModeRoundRobin.Valid() {
		t.Fatal("built-in modes should be valid")
	}
	if Mode("best_worker").Valid() {
		t.Fatal("unknown mode should not be valid")
	}
}

func TestRankLongestIdle(t *testing.T) {
	t.Parallel()

	recent := idleWorker(time.Minute)
	stale := idleWorker(time.Hour)
	middle := idleWorker(10 * time.Minute)

	ranked := ModeLongestIdle.Rank([]*worker.Worker{recent, stale, middle})

	want := []*worker.Worker{stale, middle, recent}
	for i, w := range want {
		if ranked[i].ID != w.ID {
			t.Fatalf("rank[%d] = %s, want %s", i, ranked[i].ID, w.ID)
		}
	}
}

func TestRankRoundRobin(t *testing.T) {
	t.Parallel()

	loaded := idleWorker(time.Hour)
	loaded.Offers = []*worker.Offer{{ID: id.NewOfferID()}, {ID: id.NewOfferID()}}
	light := idleWorker(time.Minute)
	light.Assignments = []*worker.ActiveAssignment{{AssignmentID: id.NewAssignmentID()}}
	free := idleWorker(time.Second)

	ranked := ModeRoundRobin.Rank([]*worker.Worker{loaded, light, free})

	want := []*worker.Worker{free, light, loaded}
	for i, w := range want {
		if ranked[i].ID != w.ID {
			t.Fatalf("rank[%d] = %s, want %s", i, ranked[i].ID, w.ID)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	a := idleWorker(time.Hour)
	b := idleWorker(time.Minute)
	in := []*worker.Worker{b, a}

	_ = ModeLongestIdle.Rank(in)

	if in[0] != b || in[1] != a {
		t.Fatal("Rank mutated its input slice")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *DistributionPolicy {
		return &DistributionPolicy{
			ID:                  id.NewPolicyID(),
			Mode:                ModeLongestIdle,
			MinConcurrentOffers: 1,
			MaxConcurrentOffers: 2,
			OfferTTL:            time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*DistributionPolicy)
		wantErr bool
	}{
		{"valid", func(*DistributionPolicy) {}, false},
		{"unknown mode", func(p *DistributionPolicy) { p.Mode = "weighted" }, true},
		{"negative max", func(p *DistributionPolicy) { p.MaxConcurrentOffers = -1 }, true},
		{"min above max", func(p *DistributionPolicy) { p.MinConcurrentOffers = 3 }, true},
		{"negative ttl", func(p *DistributionPolicy) { p.OfferTTL = -time.Second }, true},
		{"zero max means unbounded", func(p *DistributionPolicy) { p.MaxConcurrentOffers = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := base()
			tt.mutate(p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveCap(t *testing.T) {
	t.Parallel()

	w := idleWorker(time.Minute)
	w.MaxConcurrentOffers = 5

	tests := []struct {
		name      string
		policyCap int
		want      int
	}{
		{"policy tighter", 1, 1},
		{"worker tighter", 8, 5},
		{"policy unbounded", 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &DistributionPolicy{Mode: ModeLongestIdle, MaxConcurrentOffers: tt.policyCap}
			if got := p.EffectiveCap(w); got != tt.want {
				t.Fatalf("EffectiveCap = %d, want %d", got, tt.want)
			}
		})
	}
}
