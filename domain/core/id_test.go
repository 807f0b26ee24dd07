package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseSubmissionID tests submission ID parsing
func TestParseSubmissionID(t *testing.T) {
	tests := []struct {
		input    string
		expected SubmissionID
		hasError bool
	}{
		{"valid-id", SubmissionID("valid-id"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		result, err := ParseSubmissionID(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("ParseSubmissionID(%q) expected error, got nil", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSubmissionID(%q) unexpected error: %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("ParseSubmissionID(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseArtifactRef(t *testing.T) {
	ref, err := ParseArtifactRef("train_preprocessed.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.String() != "train_preprocessed.csv" {
		t.Errorf("unexpected ref %q", ref)
	}
	if _, err := ParseArtifactRef(" "); err == nil {
		t.Error("expected error for blank artifact ref")
	}
}
