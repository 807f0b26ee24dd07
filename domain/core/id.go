package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Falls back to v4 if v7 generation fails
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// SubmissionID identifies one batch submission.
	SubmissionID ID
	// DatasetID is the identifier a dataset is known by to the summary
	// provider and the execution service (the uploaded file name).
	DatasetID ID
	// ArtifactRef is a server-side handle to a preprocessed output file.
	ArtifactRef ID
)

// String conversions for domain IDs
func (id SubmissionID) String() string { return ID(id).String() }
func (id DatasetID) String() string    { return ID(id).String() }
func (id ArtifactRef) String() string  { return ID(id).String() }

// NewSubmissionID returns a fresh time-ordered submission identifier.
func NewSubmissionID() SubmissionID {
	return SubmissionID(NewID())
}

// ParseSubmissionID parses a string into SubmissionID
func ParseSubmissionID(s string) (SubmissionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("submission ID cannot be empty")
	}
	return SubmissionID(s), nil
}

// ParseArtifactRef parses a string into ArtifactRef
func ParseArtifactRef(s string) (ArtifactRef, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("artifact reference cannot be empty")
	}
	return ArtifactRef(s), nil
}
