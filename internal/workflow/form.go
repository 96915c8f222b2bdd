package workflow

import "github.com/agchavez/interlace/internal/models"

// Slot describes one attachment slot of the edit form
type Slot struct {
	Category  models.Category     `json:"category"`
	Label     string              `json:"label"`
	MaxFiles  int                 `json:"max_files"`
	Existing  []models.Attachment `json:"existing"`
	Remaining int                 `json:"remaining"`
	Enabled   bool                `json:"enabled"`
}

// Form describes what the operator may do with a claim right now
type Form struct {
	ClaimID        int                `json:"claim_id"`
	Status         models.ClaimStatus `json:"status"`
	Terminal       bool               `json:"terminal"`
	UploadsEnabled bool               `json:"uploads_enabled"`
	Actions        []Action           `json:"actions"`
	Slots          []Slot             `json:"slots"`
}

// FormFor builds the form state for a claim. Terminal claims get every slot
// disabled.
func FormFor(claim *models.Claim) Form {
	enabled := UploadsEnabled(claim.Status)
	form := Form{
		ClaimID:        claim.ID,
		Status:         claim.Status,
		Terminal:       IsTerminal(claim.Status),
		UploadsEnabled: enabled,
		Actions:        AvailableActions(claim.Status),
	}

	for _, cat := range models.AllCategories() {
		existing := claim.Attachments(cat)
		// documents are replaced rather than appended
		remaining := 1
		if cat.IsPhoto() {
			remaining = max(cat.MaxFiles()-len(existing), 0)
		}
		if !enabled {
			remaining = 0
		}
		form.Slots = append(form.Slots, Slot{
			Category:  cat,
			Label:     cat.Label(),
			MaxFiles:  cat.MaxFiles(),
			Existing:  existing,
			Remaining: remaining,
			Enabled:   enabled,
		})
	}
	return form
}
