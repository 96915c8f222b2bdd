package workflow

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/agchavez/interlace/internal/models"
)

var (
	pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	pdfData = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	txtData = []byte("just some notes")
)

func invalidFields(t *testing.T, err error) map[string][]string {
	t.Helper()
	var inv *InvalidRequest
	require.True(t, errors.As(err, &inv), "expected *InvalidRequest, got %v", err)
	return inv.Fields
}

func TestApproveRequestValidate(t *testing.T) {
	req := ApproveRequest{
		ReviewerID:   5,
		ClaimNumber:  "C-100",
		DiscardDoc:   "DD-1",
		Observations: "ok",
	}
	require.NoError(t, req.Validate())

	req.ClaimFile = &File{Name: "claim.pdf", Data: pdfData}
	require.NoError(t, req.Validate())

	fields := invalidFields(t, ApproveRequest{}.Validate())
	require.Contains(t, fields, "changed_by_id")
	require.Contains(t, fields, "new_claim_number")
	require.Contains(t, fields, "discard_doc")
	require.Contains(t, fields, "observations")

	req.CreditMemoFile = &File{Name: "memo.txt", Data: txtData}
	fields = invalidFields(t, req.Validate())
	require.Contains(t, fields, "credit_memo_file")
}

func TestRejectRequestValidate(t *testing.T) {
	require.NoError(t, RejectRequest{ReviewerID: 1, Reason: "late"}.Validate())

	fields := invalidFields(t, RejectRequest{ReviewerID: 1}.Validate())
	require.Equal(t, []string{"This field is required."}, fields["reject_reason"])

	empty := RejectRequest{ReviewerID: 1, Reason: "x", ObservationsFile: &File{Name: "a.pdf"}}
	fields = invalidFields(t, empty.Validate())
	require.Contains(t, fields, "observations_file")
}

func TestTakeRequestValidate(t *testing.T) {
	require.NoError(t, TakeRequest{ReviewerID: 3}.Validate())
	require.Error(t, TakeRequest{}.Validate())
}

func TestEditRequestValidate(t *testing.T) {
	claim := &models.Claim{
		ID:     1,
		Status: models.StatusPending,
		Photos: models.PhotoSet{
			models.CategoryContainerClosed: {{ID: 10}, {ID: 11}, {ID: 12}, {ID: 13}},
		},
		ObservationsFile: &models.Attachment{ID: 20},
	}

	t.Run("empty edit", func(t *testing.T) {
		fields := invalidFields(t, EditRequest{}.Validate(claim))
		require.Contains(t, fields, "non_field_errors")
	})

	t.Run("scalar change", func(t *testing.T) {
		obs := "updated"
		require.NoError(t, EditRequest{Observations: &obs}.Validate(claim))
	})

	t.Run("bad claim type", func(t *testing.T) {
		ct := models.ClaimType("LOST")
		fields := invalidFields(t, EditRequest{ClaimType: &ct}.Validate(claim))
		require.Contains(t, fields, "claim_type")
	})

	t.Run("photo limit counts existing minus removed", func(t *testing.T) {
		delta := AttachmentDelta{Add: []File{{Name: "a.png", Data: pngData}, {Name: "b.png", Data: pngData}}}
		req := EditRequest{Deltas: map[models.Category]AttachmentDelta{models.CategoryContainerClosed: delta}}
		fields := invalidFields(t, req.Validate(claim))
		require.Contains(t, fields, string(models.CategoryContainerClosed))

		delta.Remove(10)
		req.Deltas[models.CategoryContainerClosed] = delta
		require.NoError(t, req.Validate(claim))
	})

	t.Run("photos must be images", func(t *testing.T) {
		delta := AttachmentDelta{Add: []File{{Name: "doc.pdf", Data: pdfData}}}
		req := EditRequest{Deltas: map[models.Category]AttachmentDelta{models.CategoryDamagedBoxes: delta}}
		fields := invalidFields(t, req.Validate(claim))
		require.Contains(t, fields, string(models.CategoryDamagedBoxes))
	})

	t.Run("removal must belong to category", func(t *testing.T) {
		var delta AttachmentDelta
		delta.Remove(99)
		req := EditRequest{Deltas: map[models.Category]AttachmentDelta{models.CategoryContainerClosed: delta}}
		fields := invalidFields(t, req.Validate(claim))
		require.Contains(t, fields, string(models.CategoryContainerClosed))
	})

	t.Run("document replaced without explicit removal", func(t *testing.T) {
		delta := AttachmentDelta{Add: []File{{Name: "obs.pdf", Data: pdfData}}}
		req := EditRequest{Deltas: map[models.Category]AttachmentDelta{models.CategoryObservationsFile: delta}}
		require.NoError(t, req.Validate(claim))

		delta.Add = append(delta.Add, File{Name: "obs2.pdf", Data: pdfData})
		req.Deltas[models.CategoryObservationsFile] = delta
		require.Error(t, req.Validate(claim))
	})

	t.Run("unknown category", func(t *testing.T) {
		delta := AttachmentDelta{Add: []File{{Name: "a.png", Data: pngData}}}
		req := EditRequest{Deltas: map[models.Category]AttachmentDelta{"photos_selfie": delta}}
		fields := invalidFields(t, req.Validate(claim))
		require.Equal(t, []string{"unknown attachment category"}, fields["photos_selfie"])
	})
}

func TestAttachmentDeltaRemovalList(t *testing.T) {
	var d AttachmentDelta
	require.True(t, d.Empty())
	d.Remove(7, 3, 7, 5)
	require.False(t, d.Empty())
	require.Equal(t, []int{3, 5, 7}, d.RemovalList())
}

func TestValidateCreate(t *testing.T) {
	require.NoError(t, ValidateCreate(models.CreateClaimInput{Tracker: 3, ClaimType: models.ClaimTypeMissing}))

	fields := invalidFields(t, ValidateCreate(models.CreateClaimInput{ClaimType: "PERDIDO"}))
	require.Contains(t, fields, "tracker")
	require.Contains(t, fields, "claim_type")
}
