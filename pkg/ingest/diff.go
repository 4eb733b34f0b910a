package ingest

import (
	"sort"

	"github.com/xhad/quill/internal/models"
)

// Changes is the outcome of comparing a source listing against the
// previously recorded documents.
type Changes struct {
	ToProcess []string
	ToDelete  []string
}

// Classify compares the stored document records with the source's current
// listing. Documents that are absent from the records or carry a different
// version token go to ToProcess; recorded documents missing from the
// listing go to ToDelete. Version tokens are compared only for equality,
// so a document whose content changed without its token changing is not
// detected here.
//
// Both result slices are sorted so runs are deterministic.
func Classify(existing []models.Document, current []models.Listing) Changes {
	known := make(map[string]string, len(existing))
	for _, doc := range existing {
		known[doc.DocumentID] = doc.Version
	}

	var changes Changes
	seen := make(map[string]bool, len(current))
	for _, listing := range current {
		seen[listing.DocumentID] = true
		version, ok := known[listing.DocumentID]
		if !ok || version != listing.Version {
			changes.ToProcess = append(changes.ToProcess, listing.DocumentID)
		}
	}

	for _, doc := range existing {
		if !seen[doc.DocumentID] {
			changes.ToDelete = append(changes.ToDelete, doc.DocumentID)
		}
	}

	sort.Strings(changes.ToProcess)
	sort.Strings(changes.ToDelete)
	return changes
}
