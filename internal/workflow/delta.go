package workflow

import (
	"fmt"
	"sort"

	"github.com/agchavez/interlace/internal/models"
)

// AttachmentDelta is the change requested for one attachment slot: files to
// append and IDs of stored attachments to drop. Reconciling the final list
// is left to the claims API.
type AttachmentDelta struct {
	Add       []File
	RemoveIDs map[int]struct{}
}

// Remove marks stored attachments for removal
func (d *AttachmentDelta) Remove(ids ...int) {
	if d.RemoveIDs == nil {
		d.RemoveIDs = make(map[int]struct{}, len(ids))
	}
	for _, id := range ids {
		d.RemoveIDs[id] = struct{}{}
	}
}

// Empty reports whether the delta adds and removes nothing
func (d AttachmentDelta) Empty() bool {
	return len(d.Add) == 0 && len(d.RemoveIDs) == 0
}

// RemovalList returns the removal IDs in ascending order
func (d AttachmentDelta) RemovalList() []int {
	ids := make([]int, 0, len(d.RemoveIDs))
	for id := range d.RemoveIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (d AttachmentDelta) validate(inv *InvalidRequest, claim *models.Claim, cat models.Category) {
	field := string(cat)
	if !cat.Valid() {
		inv.add(field, "unknown attachment category")
		return
	}

	existing := claim.Attachments(cat)
	stored := make(map[int]struct{}, len(existing))
	for _, a := range existing {
		stored[a.ID] = struct{}{}
	}
	for _, id := range d.RemovalList() {
		if _, ok := stored[id]; !ok {
			inv.add(field, fmt.Sprintf("attachment %d does not belong to this category", id))
		}
	}

	// A new document replaces the stored one; photos accumulate.
	remaining := 0
	if cat.IsPhoto() {
		remaining = len(existing) - len(d.RemoveIDs)
		if remaining < 0 {
			remaining = 0
		}
	}
	if total := remaining + len(d.Add); total > cat.MaxFiles() {
		inv.add(field, fmt.Sprintf("at most %d files allowed, got %d", cat.MaxFiles(), total))
	}

	for _, f := range d.Add {
		checkFile(inv, cat, f)
	}
}
