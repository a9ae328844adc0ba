package briefings

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/jimdaga/mediecho/internal/models"
)

// geometry is the page size and margins in points
type geometry struct {
	width, height float64
	margin        float64
	bottomMargin  float64
}

// US Letter
var letter = geometry{width: 612, height: 792, margin: 50, bottomMargin: 100}

const maxRenderedHighlights = 5

// RenderInput is everything a brief document shows
type RenderInput struct {
	User        *models.User
	Summary     Summary
	Window      Window
	GeneratedAt time.Time
}

// Renderer lays out brief documents. Dates are shown in loc.
type Renderer struct {
	loc *time.Location
}

// NewRenderer creates a Renderer
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// Render produces the PDF bytes for in
func (r *Renderer) Render(in RenderInput) ([]byte, error) {
	pdf := r.layout(in, letter)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// page tracks the vertical cursor. Text is drawn at the cursor baseline.
type page struct {
	pdf *fpdf.Fpdf
	g   geometry
	y   float64
	// tr maps UTF-8 onto cp1252 for the core fonts; other runes become substitutes
	tr func(string) string
}

func (p *page) text(size float64, style, s string, advance float64) {
	p.pdf.SetFont("Helvetica", style, size)
	p.pdf.Text(p.g.margin, p.y, p.tr(s))
	p.y += advance
}

// wrapped draws s across as many lines as the content width needs
func (p *page) wrapped(size float64, style, s string, lineHeight float64) {
	p.pdf.SetFont("Helvetica", style, size)
	for _, line := range p.pdf.SplitText(p.tr(s), p.g.width-2*p.g.margin) {
		p.pdf.Text(p.g.margin, p.y, line)
		p.y += lineHeight
	}
}

// breakIfPastBottom starts a new page once the cursor crosses the bottom margin
func (p *page) breakIfPastBottom() {
	if p.y > p.g.height-p.g.bottomMargin {
		p.pdf.AddPage()
		p.y = p.g.margin
	}
}

func (r *Renderer) layout(in RenderInput, g geometry) *fpdf.Fpdf {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: g.width, Ht: g.height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(g.margin, g.margin, g.margin)
	pdf.SetTitle("MediEcho Weekly Health Brief", true)
	pdf.SetCreator("MediEcho", true)
	pdf.SetCreationDate(in.GeneratedAt)
	pdf.SetModificationDate(in.GeneratedAt)
	pdf.AddPage()

	p := &page{pdf: pdf, g: g, y: g.margin, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	// Title block
	p.text(20, "B", "MediEcho Weekly Health Brief", 28)
	p.text(12, "", fmt.Sprintf("%s - %s",
		in.Window.Start.In(r.loc).Format("Jan 2, 2006"),
		in.Window.End.In(r.loc).Format("Jan 2, 2006")), 18)
	p.text(12, "", "Prepared for: "+in.User.DisplayName(), 32)

	// Summary block
	s := in.Summary
	p.text(14, "B", "Summary", 20)
	p.text(11, "", fmt.Sprintf("Total Entries: %d", s.TotalLogs), 16)
	p.text(11, "", fmt.Sprintf("Average Intensity: %.1f/10", s.AvgIntensity), 16)
	if len(s.ByType) > 0 {
		p.text(11, "", "Entries by type:", 16)
		for _, t := range models.LogTypes {
			if n := s.ByType[t]; n > 0 {
				p.text(11, "", fmt.Sprintf("  • %s: %d", titleCase(string(t)), n), 16)
			}
		}
	}
	p.y += 14

	// Trends block
	if len(s.Trends) > 0 {
		p.text(14, "B", "Observations:", 20)
		for _, trend := range s.Trends {
			p.wrapped(11, "", "• "+trend, 16)
		}
		p.y += 14
	}

	// Highlights block
	if len(s.Highlights) > 0 {
		p.text(14, "B", "Notable Entries:", 20)
		for i, h := range s.Highlights {
			if i == maxRenderedHighlights {
				break
			}
			line := fmt.Sprintf("[%s] %s: %s", h.Date.In(r.loc).Format("Jan 2"), h.Type, h.Text)
			p.wrapped(10, "", line, 14)
			p.y += 6
			p.breakIfPastBottom()
		}
	}

	// Footer on the final page
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	footerY := g.height - g.margin
	pdf.Text(g.margin, footerY, p.tr("Generated by MediEcho - Your Privacy-First Health Journal"))
	pdf.Text(g.margin, footerY+12, p.tr("Generated on "+in.GeneratedAt.In(r.loc).Format("Jan 2, 2006 3:04 PM MST")))

	return pdf
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
