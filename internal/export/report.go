package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agchavez/interlace/internal/models"
)

// FetchFunc downloads a stored attachment by filename
type FetchFunc func(ctx context.Context, filename string) ([]byte, error)

// ReportOptions tunes PDF generation
type ReportOptions struct {
	// Concurrency bounds parallel photo downloads
	Concurrency int
	// SkipPhotos renders the report without fetching any image
	SkipPhotos bool
}

const (
	pageMargin  = 15.0
	photoWidth  = 56.0
	photoGap    = 4.0
	photosInRow = 3
	lineHeight  = 6.0
)

type photo struct {
	category models.Category
	att      models.Attachment
	data     []byte
	kind     string
}

// WriteReport renders a PDF report of a claim: its fields, products and
// photos. Photos that cannot be fetched or decoded are listed by name.
func WriteReport(ctx context.Context, w io.Writer, claim *models.Claim, fetch FetchFunc, opts ReportOptions) error {
	photos, err := fetchPhotos(ctx, claim, fetch, opts)
	if err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := fmt.Sprintf("%s #%d", claim.Label(), claim.ID)
	pdf.SetTitle(tr(title), false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s - página %d", title, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	writeFields(pdf, tr, claim)
	writeProducts(pdf, tr, claim.Products)
	writePhotos(pdf, tr, photos)

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "failed to render pdf")
	}
	return nil
}

func writeFields(pdf *fpdf.Fpdf, tr func(string) string, c *models.Claim) {
	fields := [][2]string{
		{"Estado", StatusLabel(c.Status)},
		{"Tipo de reclamo", ClaimTypeLabel(c.ClaimType)},
		{"Tracker", strconv.Itoa(c.Tracker)},
		{"Centro de distribución", c.DistributorCenter},
		{"Asignado a", c.AssignedTo.FullName()},
		{"Número de reclamo", c.ClaimNumber},
		{"Documento de descarte", c.DiscardDoc},
		{"Descripción", c.Description},
		{"Observaciones", c.Observations},
		{"Motivo de rechazo", c.Reason},
		{"Creado", formatTime(c.CreatedAt)},
		{"Actualizado", formatTime(c.UpdatedAt)},
	}

	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, lineHeight, tr(f[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, lineHeight, tr(f[1]), "", "L", false)
	}
	pdf.Ln(4)
}

func writeProducts(pdf *fpdf.Fpdf, tr func(string) string, products []models.ClaimProduct) {
	if len(products) == 0 {
		return
	}
	heading(pdf, tr, "Productos")

	widths := []float64{30, 90, 25, 35}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"Código SAP", "Producto", "Cantidad", "Lote"} {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, p := range products {
		pdf.CellFormat(widths[0], 6, tr(p.SapCode), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, tr(p.ProductName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, strconv.Itoa(p.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, tr(p.Batch), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

func writePhotos(pdf *fpdf.Fpdf, tr func(string) string, photos []photo) {
	_, pageHeight := pdf.GetPageSize()

	var current models.Category
	col := 0
	rowHeight := 0.0
	flush := func() {
		if col > 0 {
			pdf.SetY(pdf.GetY() + rowHeight + photoGap)
		}
		col, rowHeight = 0, 0
	}
	note := func(text string) {
		flush()
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(text), "", "L", false)
	}

	for i, p := range photos {
		if p.category != current {
			flush()
			current = p.category
			heading(pdf, tr, p.category.Label())
		}

		if p.kind == "" {
			note(fmt.Sprintf("%s (no disponible)", p.att.Name))
			continue
		}

		name := fmt.Sprintf("photo-%d-%d", p.att.ID, i)
		info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: p.kind}, bytes.NewReader(p.data))
		if pdf.Err() || info == nil || info.Width() == 0 {
			pdf.ClearError()
			note(fmt.Sprintf("%s (imagen dañada)", p.att.Name))
			continue
		}
		h := photoWidth * info.Height() / info.Width()

		if col == 0 && pdf.GetY()+h > pageHeight-pageMargin {
			pdf.AddPage()
		}
		x := pageMargin + float64(col)*(photoWidth+photoGap)
		pdf.ImageOptions(name, x, pdf.GetY(), photoWidth, h, false, fpdf.ImageOptions{ImageType: p.kind}, 0, "")
		if h > rowHeight {
			rowHeight = h
		}

		col++
		if col == photosInRow {
			flush()
		}
	}
	flush()
}

func heading(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr(text), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

// fetchPhotos downloads every photo of the claim concurrently, keeping the
// category display order.
func fetchPhotos(ctx context.Context, claim *models.Claim, fetch FetchFunc, opts ReportOptions) ([]photo, error) {
	var photos []photo
	for _, cat := range models.PhotoCategories {
		for _, att := range claim.Attachments(cat) {
			photos = append(photos, photo{category: cat, att: att})
		}
	}
	if opts.SkipPhotos || fetch == nil || len(photos) == 0 {
		return photos, nil
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range photos {
		p := &photos[i]
		g.Go(func() error {
			data, err := fetch(gctx, p.att.File)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Str("file", p.att.File).Msg("Failed to fetch photo for report")
				return nil
			}
			p.data = data
			p.kind = imageKind(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return photos, nil
}

// imageKind maps sniffed content to an fpdf image type, empty when fpdf
// cannot embed it.
func imageKind(data []byte) string {
	switch mimetype.Detect(data).String() {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	}
	return ""
}
