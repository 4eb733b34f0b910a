package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/quill/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		existing  []models.Document
		current   []models.Listing
		toProcess []string
		toDelete  []string
	}{
		{
			name:      "all new",
			current:   []models.Listing{{DocumentID: "b.txt", Version: "v1"}, {DocumentID: "a.txt", Version: "v1"}},
			toProcess: []string{"a.txt", "b.txt"},
		},
		{
			name: "unchanged is a no-op",
			existing: []models.Document{
				{DocumentID: "a.txt", Version: "v1"},
			},
			current: []models.Listing{{DocumentID: "a.txt", Version: "v1"}},
		},
		{
			name: "version change triggers reprocessing",
			existing: []models.Document{
				{DocumentID: "a.txt", Version: "v1"},
				{DocumentID: "b.txt", Version: "v1"},
			},
			current: []models.Listing{
				{DocumentID: "a.txt", Version: "v2"},
				{DocumentID: "b.txt", Version: "v1"},
			},
			toProcess: []string{"a.txt"},
		},
		{
			name: "missing from listing is deleted",
			existing: []models.Document{
				{DocumentID: "a.txt", Version: "v1"},
				{DocumentID: "b.txt", Version: "v1"},
			},
			current:  []models.Listing{{DocumentID: "a.txt", Version: "v1"}},
			toDelete: []string{"b.txt"},
		},
		{
			name: "mixed",
			existing: []models.Document{
				{DocumentID: "stale.txt", Version: "v1"},
				{DocumentID: "changed.txt", Version: "v1"},
				{DocumentID: "same.txt", Version: "v3"},
			},
			current: []models.Listing{
				{DocumentID: "changed.txt", Version: "v2"},
				{DocumentID: "same.txt", Version: "v3"},
				{DocumentID: "new.txt", Version: "v1"},
			},
			toProcess: []string{"changed.txt", "new.txt"},
			toDelete:  []string{"stale.txt"},
		},
		{
			name:     "empty listing deletes everything",
			existing: []models.Document{{DocumentID: "a.txt", Version: "v1"}},
			toDelete: []string{"a.txt"},
		},
		{
			name: "everything empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := Classify(tt.existing, tt.current)
			assert.Equal(t, tt.toProcess, changes.ToProcess)
			assert.Equal(t, tt.toDelete, changes.ToDelete)
		})
	}
}

func TestClassifyVersionEqualityOnly(t *testing.T) {
	// Tokens are opaque; "later" and "earlier" strings both just count as
	// different.
	existing := []models.Document{{DocumentID: "a.txt", Version: "2024-01-02"}}
	current := []models.Listing{{DocumentID: "a.txt", Version: "2024-01-01"}}

	changes := Classify(existing, current)
	assert.Equal(t, []string{"a.txt"}, changes.ToProcess)
	assert.Empty(t, changes.ToDelete)
}
