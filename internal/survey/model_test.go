package survey

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseStatusAcceptsKnownValues(t *testing.T) {
	cases := map[string]Status{
		"pending":     StatusPending,
		"in-progress": StatusInProgress,
		"completed":   StatusCompleted,
		"cancelled":   StatusCancelled,
		" pending ":   StatusPending,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("expected %s for %q, got %s", want, raw, got)
		}
	}
}

func TestParseStatusRejectsUnknownValues(t *testing.T) {
	for _, raw := range []string{"", "done", "PENDING"} {
		if _, err := ParseStatus(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestStatusProgression(t *testing.T) {
	if StatusPending.Next() != StatusInProgress {
		t.Fatalf("pending should advance to in-progress")
	}
	if StatusInProgress.Next() != StatusCompleted {
		t.Fatalf("in-progress should advance to completed")
	}
	if StatusCompleted.Next() != StatusCompleted {
		t.Fatalf("completed should stay completed")
	}
	if StatusCancelled.Next() != StatusPending {
		t.Fatalf("cancelled should re-enter at pending")
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	original := Snapshot{
		Surveys: []Survey{{ID: "s1", Title: "Loft insulation", Status: StatusPending}},
		Files: map[string][]FileMetadata{
			"s1": {{ID: "f1", SurveyID: "s1", Name: "report.pdf", Size: 1024}},
		},
	}

	clone := original.Clone()
	clone.Surveys[0].Title = "changed"
	clone.Files["s1"][0].Name = "changed.pdf"
	clone.Files["s2"] = []FileMetadata{{ID: "f2"}}

	if original.Surveys[0].Title != "Loft insulation" {
		t.Fatalf("clone mutation leaked into source survey")
	}
	if original.Files["s1"][0].Name != "report.pdf" {
		t.Fatalf("clone mutation leaked into source file list")
	}
	if _, ok := original.Files["s2"]; ok {
		t.Fatalf("clone map insertion leaked into source")
	}
}

func TestEmptySnapshotEncodesWithoutNulls(t *testing.T) {
	encoded, err := json.Marshal(EmptySnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(encoded), "null") {
		t.Fatalf("empty snapshot should encode empty collections, got %s", encoded)
	}
}

func TestUUIDProviderIssuesDistinctIDs(t *testing.T) {
	provider := NewUUIDProvider()
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		id, err := provider.NewID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" || seen[id] {
			t.Fatalf("expected distinct non-empty id, got %q", id)
		}
		seen[id] = true
	}
}
