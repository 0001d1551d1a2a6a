package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/router/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
		{"OfferID", id.NewOfferID, "offer_"},
		{"AssignmentID", id.NewAssignmentID, "asg_"},
		{"QueueID", id.NewQueueID, "rtq_"},
		{"PolicyID", id.NewPolicyID, "dpol_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixOffer)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixOffer {
		t.Errorf("expected prefix %q, got %q", id.PrefixOffer, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"JobID", id.NewJobID, id.ParseJobID},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID},
		{"OfferID", id.NewOfferID, id.ParseOfferID},
		{"AssignmentID", id.NewAssignmentID, id.ParseAssignmentID},
		{"QueueID", id.NewQueueID, id.ParseQueueID},
		{"PolicyID", id.NewPolicyID, id.ParsePolicyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"worker ID as job", id.NewWorkerID().String(), id.ParseJobID},
		{"job ID as offer", id.NewJobID().String(), id.ParseOfferID},
		{"offer ID as assignment", id.NewOfferID().String(), id.ParseAssignmentID},
		{"queue ID as policy", id.NewQueueID().String(), id.ParsePolicyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected prefix mismatch error for %q", tt.input)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "notanid"},
		{"bad suffix", "job_!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("expected parse error for %q", tt.input)
			}
		})
	}
}

func TestTextMarshalRoundTrip(t *testing.T) {
	original := id.NewOfferID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero value should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID string should be empty, got %q", nilID.String())
	}

	v, err := nilID.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != nil {
		t.Errorf("nil ID should store NULL, got %v", v)
	}
}

func TestScan(t *testing.T) {
	original := id.NewWorkerID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("scan string mismatch: %q != %q", fromString.String(), original.String())
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(original.String())); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if fromBytes.String() != original.String() {
		t.Errorf("scan bytes mismatch: %q != %q", fromBytes.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("scanning nil should produce the Nil ID")
	}

	var fromInt id.ID
	if err := fromInt.Scan(42); err == nil {
		t.Error("scanning an int should fail")
	}
}
