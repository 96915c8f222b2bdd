package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/agchavez/interlace/internal/models"
)

// ClaimHeader is the column layout of the claim list export
var ClaimHeader = []string{
	"ID",
	"Tipo",
	"Tipo de reclamo",
	"Estado",
	"Tracker",
	"Centro de distribución",
	"Número de reclamo",
	"Documento de descarte",
	"Asignado a",
	"Observaciones",
	"Motivo de rechazo",
	"Productos",
	"Creado",
	"Actualizado",
}

var statusLabels = map[models.ClaimStatus]string{
	models.StatusPending:  "Pendiente",
	models.StatusInReview: "En revisión",
	models.StatusApproved: "Aprobado",
	models.StatusRejected: "Rechazado",
}

var claimTypeLabels = map[models.ClaimType]string{
	models.ClaimTypeMissing: "Faltante",
	models.ClaimTypeExcess:  "Sobrante",
	models.ClaimTypeDamage:  "Daños por calidad y transporte",
}

// StatusLabel is the display name of a status
func StatusLabel(s models.ClaimStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// ClaimTypeLabel is the display name of a claim type
func ClaimTypeLabel(t models.ClaimType) string {
	if l, ok := claimTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// ClaimTable lays claims out as export rows
func ClaimTable(claims []models.Claim) Table {
	t := Table{
		Header: append([]string(nil), ClaimHeader...),
		Rows:   make([][]string, 0, len(claims)),
	}
	for i := range claims {
		c := &claims[i]
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(c.ID),
			c.Label(),
			ClaimTypeLabel(c.ClaimType),
			StatusLabel(c.Status),
			strconv.Itoa(c.Tracker),
			text(c.DistributorCenter),
			text(c.ClaimNumber),
			text(c.DiscardDoc),
			text(c.AssignedTo.FullName()),
			text(c.Observations),
			text(c.Reason),
			text(productSummary(c.Products)),
			formatTime(c.CreatedAt),
			formatTime(c.UpdatedAt),
		})
	}
	return t
}

// lineBreaks folds CRLF and lone CR into LF. CSV readers drop the CR of a
// CRLF even inside quoted fields.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func text(s string) string {
	return lineBreaks.Replace(s)
}

func productSummary(products []models.ClaimProduct) string {
	parts := make([]string, 0, len(products))
	for _, p := range products {
		parts = append(parts, p.SapCode+" "+p.ProductName+" x"+strconv.Itoa(p.Quantity))
	}
	return strings.Join(parts, "; ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
