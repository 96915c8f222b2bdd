package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/workflow"
)

// removeSuffix names the field listing attachment IDs to drop from a slot
const removeSuffix = "_remove_ids"

// uploadError is returned when the request body cannot be read as a form
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string {
	return e.msg
}

// uploads returns the file parts of a multipart body. Bodies that are not
// multipart carry no files.
func uploads(c *gin.Context) (map[string][]*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadError{status: http.StatusRequestEntityTooLarge, msg: "Upload too large"}
		}
		return nil, &uploadError{status: http.StatusBadRequest, msg: "Malformed multipart body"}
	}
	return form.File, nil
}

func readUpload(fh *multipart.FileHeader) (workflow.File, error) {
	f, err := fh.Open()
	if err != nil {
		return workflow.File{}, errors.Wrapf(err, "failed to open upload %s", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return workflow.File{}, errors.Wrapf(err, "failed to read upload %s", fh.Filename)
	}
	return workflow.File{Name: fh.Filename, Data: data}, nil
}

func readUploads(headers []*multipart.FileHeader) ([]workflow.File, error) {
	files := make([]workflow.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// document returns the single file under field. More than one is an error.
func document(files map[string][]*multipart.FileHeader, field string) (*workflow.File, error) {
	headers := files[field]
	switch len(headers) {
	case 0:
		return nil, nil
	case 1:
		f, err := readUpload(headers[0])
		if err != nil {
			return nil, err
		}
		return &f, nil
	}
	return nil, &workflow.InvalidRequest{Fields: map[string][]string{
		field: {"Only one file may be uploaded."},
	}}
}

// optional returns a pointer to the posted value, nil when it was not sent
func optional(c *gin.Context, name string) *string {
	if v, ok := c.GetPostForm(name); ok {
		return &v
	}
	return nil
}

// reviewerID is the posted changed_by_id, or the signed in operator
func reviewerID(c *gin.Context, ts apiclient.TokenSource) (int, error) {
	if raw := c.PostForm("changed_by_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return 0, &workflow.InvalidRequest{Fields: map[string][]string{
				"changed_by_id": {"A valid integer is required."},
			}}
		}
		return id, nil
	}
	tok, err := ts.Token(c.Request.Context())
	if err != nil {
		return 0, err
	}
	return tok.UserID, nil
}

// parseIDs reads repeated or comma separated integer values
func parseIDs(values []string) ([]int, error) {
	var ids []int
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, errors.Errorf("%q is not a valid attachment ID", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func takeRequest(c *gin.Context, ts apiclient.TokenSource) (workflow.TakeRequest, error) {
	if _, err := uploads(c); err != nil {
		return workflow.TakeRequest{}, err
	}
	id, err := reviewerID(c, ts)
	return workflow.TakeRequest{ReviewerID: id}, err
}

func approveRequest(c *gin.Context, ts apiclient.TokenSource) (workflow.ApproveRequest, error) {
	var req workflow.ApproveRequest
	files, err := uploads(c)
	if err != nil {
		return req, err
	}
	if req.ReviewerID, err = reviewerID(c, ts); err != nil {
		return req, err
	}
	req.ClaimNumber = c.PostForm("new_claim_number")
	req.DiscardDoc = c.PostForm("discard_doc")
	req.Observations = c.PostForm("observations")

	if req.ClaimFile, err = document(files, string(models.CategoryClaimFile)); err != nil {
		return req, err
	}
	if req.CreditMemoFile, err = document(files, string(models.CategoryCreditMemoFile)); err != nil {
		return req, err
	}
	req.ObservationsFile, err = document(files, string(models.CategoryObservationsFile))
	return req, err
}

func rejectRequest(c *gin.Context, ts apiclient.TokenSource) (workflow.RejectRequest, error) {
	var req workflow.RejectRequest
	files, err := uploads(c)
	if err != nil {
		return req, err
	}
	if req.ReviewerID, err = reviewerID(c, ts); err != nil {
		return req, err
	}
	req.Reason = c.PostForm("reject_reason")
	req.ObservationsFile, err = document(files, string(models.CategoryObservationsFile))
	return req, err
}

// editRequest reads an edit body. Files are posted under the slot name and
// removals under <slot>_remove_ids.
func editRequest(c *gin.Context) (workflow.EditRequest, error) {
	var req workflow.EditRequest
	files, err := uploads(c)
	if err != nil {
		return req, err
	}

	if v := optional(c, "claim_type"); v != nil {
		ct := models.ClaimType(*v)
		req.ClaimType = &ct
	}
	req.Description = optional(c, "description")
	req.Observations = optional(c, "observations")
	req.DiscardDoc = optional(c, "discard_doc")
	req.ClaimNumber = optional(c, "claim_number")

	if raw := optional(c, "claim_products"); raw != nil {
		products := []models.ClaimProduct{}
		if err := json.Unmarshal([]byte(*raw), &products); err != nil {
			return req, &workflow.InvalidRequest{Fields: map[string][]string{
				"claim_products": {"Products must be a JSON list."},
			}}
		}
		req.Products = products
	}

	deltas := map[models.Category]workflow.AttachmentDelta{}
	for field, headers := range files {
		added, err := readUploads(headers)
		if err != nil {
			return req, err
		}
		cat := models.Category(field)
		d := deltas[cat]
		d.Add = append(d.Add, added...)
		deltas[cat] = d
	}

	if c.Request.PostForm != nil {
		for field, values := range c.Request.PostForm {
			if !strings.HasSuffix(field, removeSuffix) {
				continue
			}
			ids, err := parseIDs(values)
			if err != nil {
				return req, &workflow.InvalidRequest{Fields: map[string][]string{field: {err.Error()}}}
			}
			if len(ids) == 0 {
				continue
			}
			cat := models.Category(strings.TrimSuffix(field, removeSuffix))
			d := deltas[cat]
			d.Remove(ids...)
			deltas[cat] = d
		}
	}

	if len(deltas) > 0 {
		req.Deltas = deltas
	}
	return req, nil
}
