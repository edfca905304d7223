package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/strogmv/renodesk/internal/domain"
)

// Generator generates PDF reports.
type Generator struct{}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateReputationReport renders a one-page PDF for a daily reputation snapshot.
func (g *Generator) GenerateReputationReport(m domain.ReputationMetrics, conditions []string) ([]byte, error) {
	doc := maroto.New()

	doc.AddRows(
		row.New(20).Add(
			col.New(12).Add(
				text.New("SENDER REPUTATION REPORT", props.Text{
					Align: align.Center,
					Size:  18,
					Style: fontstyle.Bold,
				}),
			),
		),
		row.New(10).Add(
			col.New(12).Add(
				text.New(m.Date, props.Text{Align: align.Center, Size: 12}),
			),
		),
	)

	lines := [][2]string{
		{"Emails sent", fmt.Sprintf("%d", m.TotalEmailsSent)},
		{"Bounces", fmt.Sprintf("%d", m.TotalBounces)},
		{"Complaints", fmt.Sprintf("%d", m.TotalComplaints)},
		{"Bounce rate", fmt.Sprintf("%.2f%%", m.BounceRate)},
		{"Complaint rate", fmt.Sprintf("%.3f%%", m.ComplaintRate)},
		{"Delivery rate", fmt.Sprintf("%.2f%%", m.DeliveryRate)},
		{"Quota usage", fmt.Sprintf("%.0f / %.0f (%.1f%%)", m.SendingQuotaUsed, m.SendingQuotaMax, m.QuotaUsagePercent)},
	}
	for _, l := range lines {
		doc.AddRows(
			row.New(8).Add(
				col.New(6).Add(text.New(l[0])),
				col.New(6).Add(text.New(l[1], props.Text{Style: fontstyle.Bold})),
			),
		)
	}

	doc.AddRows(
		row.New(15).Add(
			col.New(12).Add(
				text.New(fmt.Sprintf("Reputation score: %d / 100", m.ReputationScore), props.Text{
					Style: fontstyle.Bold,
					Size:  14,
					Top:   5,
				}),
			),
		),
	)

	if len(conditions) > 0 {
		doc.AddRows(
			row.New(12).Add(
				col.New(12).Add(text.New("ALERTS", props.Text{Style: fontstyle.Bold, Top: 4})),
			),
		)
		for _, c := range conditions {
			doc.AddRows(row.New(8).Add(col.New(12).Add(text.New("- " + c))))
		}
	}

	out, err := doc.Generate()
	if err != nil {
		return nil, err
	}

	return out.GetBytes(), nil
}
