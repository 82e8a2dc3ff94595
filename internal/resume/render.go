package resume

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth   = 210.0
	margin      = 18.0
	textWidth   = pageWidth - 2*margin
	lineHeight  = 5.5
	maxRoleLine = 140
)

// Content is everything placed on one page.
type Content struct {
	Profile     *Profile
	TargetRole  string
	CustomFocus string
}

// Render lays out content as a single A4 PDF.
func Render(content Content) ([]byte, error) {
	if content.Profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	p := content.Profile

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(p.Name+" - Résumé", true)
	pdf.SetAuthor(p.Name, true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(textWidth, 10, tr(p.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(textWidth, 7, tr(p.Headline), "", 1, "L", false, 0, "")
	if p.Contact != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(textWidth, 5, tr(p.Contact), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	if role := targetRole(content.TargetRole); role != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(textWidth, lineHeight, tr("Prepared for: "+role), "", "L", false)
	}

	section(pdf, tr, "Summary")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(textWidth, lineHeight, tr(strings.TrimSpace(p.Summary)), "", "L", false)

	if focus := strings.TrimSpace(content.CustomFocus); focus != "" {
		section(pdf, tr, "Tailored focus")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(textWidth, lineHeight, tr(focus), "", "L", false)
	}

	if len(p.Skills) > 0 {
		section(pdf, tr, "Skills")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(textWidth, lineHeight, tr(strings.Join(p.Skills, " · ")), "", "L", false)
	}

	section(pdf, tr, "Experience")
	for _, pos := range p.Experience {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(textWidth*0.7, 6, tr(pos.Title+", "+pos.Company), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(textWidth*0.3, 6, tr(pos.Period), "", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, h := range pos.Highlights {
			pdf.MultiCell(textWidth, lineHeight, tr("- "+h), "", "L", false)
		}
		pdf.Ln(1.5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(textWidth, 7, tr(title), "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

// targetRole is the first non-empty line of a job description, shortened.
func targetRole(jobDescription string) string {
	for _, line := range strings.Split(jobDescription, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxRoleLine {
			line = string([]rune(line)[:maxRoleLine]) + "..."
		}
		return line
	}
	return ""
}
