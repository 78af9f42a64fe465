package subject

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalhouse/overture/pkg/action"
)

func TestConsentForChannelSpecificWins(t *testing.T) {
	snap := &Snapshot{
		SubjectID: "cust-1",
		Consents: []Consent{
			{Channel: "", Granted: true, GrantedAt: time.Now().Add(-48 * time.Hour)},
			{Channel: action.ChannelSMS, Granted: false, GrantedAt: time.Now()},
		},
	}

	c, ok := snap.ConsentFor(action.ChannelSMS)
	if !ok {
		t.Fatal("expected a consent record for sms")
	}
	if c.Granted {
		t.Error("channel-specific revocation should win over all-channel grant")
	}

	c, ok = snap.ConsentFor(action.ChannelEmail)
	if !ok {
		t.Fatal("expected the all-channel record for email")
	}
	if !c.Granted {
		t.Error("all-channel grant should apply to email")
	}
}

func TestConsentForNoRecords(t *testing.T) {
	snap := &Snapshot{SubjectID: "cust-2"}
	if _, ok := snap.ConsentFor(action.ChannelEmail); ok {
		t.Error("expected no consent record")
	}
}

func TestStaticProviderRoundTrip(t *testing.T) {
	p := NewStaticProvider()
	p.Put(&Snapshot{
		SubjectID:       "cust-3",
		Lifecycle:       StageActive,
		EngagementScore: 0.8,
		Attributes:      map[string]string{"region": "eu"},
	})

	snap, err := p.Snapshot(context.Background(), "cust-3")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.Lifecycle != StageActive || snap.EngagementScore != 0.8 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.TakenAt.IsZero() {
		t.Error("TakenAt should be stamped when unset")
	}

	// Mutating the returned copy must not leak back into the provider.
	snap.Attributes["region"] = "us"
	again, _ := p.Snapshot(context.Background(), "cust-3")
	if again.Attributes["region"] != "eu" {
		t.Error("returned snapshot shares state with the provider")
	}
}

func TestStaticProviderNotFound(t *testing.T) {
	p := NewStaticProvider()
	_, err := p.Snapshot(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Snapshot() = %v, want ErrNotFound", err)
	}
}

func TestStaticProviderHonorsContext(t *testing.T) {
	p := NewStaticProvider()
	p.Put(&Snapshot{SubjectID: "cust-4"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Snapshot(ctx, "cust-4"); !errors.Is(err, context.Canceled) {
		t.Errorf("Snapshot() = %v, want context.Canceled", err)
	}
}
