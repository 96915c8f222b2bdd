package services

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/export"
	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/models"
)

// exportPageSize is the page size used while collecting claims to export
const exportPageSize = 100

// ExportService produces claim list and report files
type ExportService struct {
	api     ClaimAPI
	metrics *metrics.Metrics
}

// NewExportService creates a new export service
func NewExportService(api ClaimAPI, m *metrics.Metrics) *ExportService {
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &ExportService{api: api, metrics: m}
}

// Collect pages through every claim matching filter. A positive
// filter.Limit caps the total.
func (s *ExportService) Collect(ctx context.Context, ts apiclient.TokenSource, filter models.ClaimFilter) ([]models.Claim, error) {
	limit := filter.Limit
	filter.Limit = exportPageSize

	var claims []models.Claim
	for {
		page, err := s.api.ListClaims(ctx, ts, filter)
		if err != nil {
			return nil, err
		}
		claims = append(claims, page.Results...)

		if limit > 0 && len(claims) >= limit {
			return claims[:limit], nil
		}
		if page.Next == nil || len(page.Results) == 0 || len(claims) >= page.Count {
			return claims, nil
		}
		filter.Offset += len(page.Results)
	}
}

// Claims writes the claim list in the given format and returns the number
// of rows written.
func (s *ExportService) Claims(ctx context.Context, ts apiclient.TokenSource, filter models.ClaimFilter, format export.Format, w io.Writer) (int, error) {
	done := s.metrics.Time("export.claims")
	defer done()

	claims, err := s.Collect(ctx, ts, filter)
	if err != nil {
		s.metrics.RecordError("export.claims")
		return 0, err
	}

	if err := export.Write(w, format, export.ClaimTable(claims)); err != nil {
		s.metrics.RecordError("export.claims")
		return 0, err
	}
	s.metrics.RecordSuccess("export.claims")
	log.Info().Int("rows", len(claims)).Str("format", string(format)).Msg("Claims exported")
	return len(claims), nil
}

// Report writes the PDF report of a claim with its photos
func (s *ExportService) Report(ctx context.Context, ts apiclient.TokenSource, id int, w io.Writer, opts export.ReportOptions) error {
	done := s.metrics.Time("export.report")
	defer done()

	claim, err := s.api.GetClaim(ctx, ts, id)
	if err != nil {
		s.metrics.RecordError("export.report")
		return err
	}

	fetch := func(ctx context.Context, filename string) ([]byte, error) {
		data, _, err := s.api.DownloadFile(ctx, ts, id, filename)
		return data, err
	}
	if err := export.WriteReport(ctx, w, claim, fetch, opts); err != nil {
		s.metrics.RecordError("export.report")
		return err
	}
	s.metrics.RecordSuccess("export.report")
	log.Info().Int("claim_id", id).Msg("Claim report generated")
	return nil
}
