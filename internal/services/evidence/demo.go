package evidence

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// demoReport is one synthetic audit report served in demo mode. Pages
// hold paragraph lines; each inner slice renders as one PDF page.
type demoReport struct {
	title string
	pages [][]string
}

// demoReports mirrors the PDF links on the demo trust pages, so a demo
// crawl exercises the full evidence pipeline without leaving the
// process. The wording feeds the deterministic field extractor.
var demoReports = map[string]demoReport{
	"https://demo.fides.dev/reports/soc2-type-ii.pdf": {
		title: "SOC 2 Type II Report",
		pages: [][]string{
			{
				"SOC 2 Type II Report",
				"Demo Cloud Platform",
				"Independent Service Auditor's Report",
				"This examination was performed by Meridian Assurance LLP.",
				"The report covers the period January 1, 2025 to June 30, 2025.",
			},
			{
				"Description of the System",
				"The scope of this report includes the hosted production platform, supporting infrastructure, and the operational processes relevant to security and availability.",
				"Controls were tested for operating effectiveness throughout the review window.",
			},
		},
	},
	"https://demo.fides.dev/reports/iso-27001.pdf": {
		title: "ISO 27001 Certificate",
		pages: [][]string{
			{
				"ISO 27001 Certificate of Registration",
				"Demo Cloud Platform",
				"This certification was audited by Sentinel Certification Services Inc.",
				"Scope: the information security management system supporting customer data processing and hosting operations.",
			},
		},
	},
}

// DemoPDFs renders the built-in demo reports on demand.
type DemoPDFs struct{}

// NewDemoPDFs creates the demo report set.
func NewDemoPDFs() *DemoPDFs {
	return &DemoPDFs{}
}

// Has reports whether the URL names a built-in demo report.
func (d *DemoPDFs) Has(pdfURL string) bool {
	_, ok := demoReports[pdfURL]
	return ok
}

// Render produces the PDF bytes for a demo report URL.
func (d *DemoPDFs) Render(pdfURL string) ([]byte, error) {
	report, ok := demoReports[pdfURL]
	if !ok {
		return nil, fmt.Errorf("no demo report for %s", pdfURL)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(report.title, false)

	for _, lines := range report.pages {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 14)
		pdf.MultiCell(0, 8, lines[0], "", "L", false)
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 11)
		for _, line := range lines[1:] {
			pdf.MultiCell(0, 6, line, "", "L", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render demo report: %w", err)
	}
	return buf.Bytes(), nil
}
