// Package pdf renders the Time Freedom report document.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"timefreedom/internal/lead"
	"timefreedom/internal/report"
	"timefreedom/internal/roi"
)

const (
	maxEATasksPerBucket      = 5
	maxFounderTasksPerBucket = 3
	fallbackRevenueRange     = "$500k to $1M"
)

// DefaultTaskHours is the hours breakdown assumed when a caller supplies none.
var DefaultTaskHours = roi.TaskHours{Email: 3, PersonalLife: 2, Calendar: 2, BusinessProcesses: 3}

type rgb struct{ r, g, b int }

var (
	colorPrimary   = rgb{17, 24, 39}
	colorSecondary = rgb{0, 204, 106}
	colorText      = rgb{102, 102, 102}
	colorRule      = rgb{226, 232, 240}
)

// Input is everything the document shows. ROI may be nil.
type Input struct {
	Lead   lead.Lead
	Result report.Result
	ROI    *roi.Calculation
	Date   time.Time
}

// Document is a rendered report.
type Document struct {
	Filename string
	Bytes    []byte
}

// Filename builds the download name from the lead's name and the date.
func Filename(l lead.Lead, date time.Time) string {
	var parts []string
	for _, p := range []string{l.FirstName, l.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	name := strings.Join(parts, "_")
	if name == "" {
		name = "Report"
	}
	return fmt.Sprintf("Time_Freedom_Report_%s_%s.pdf", name, date.Format("2006-01-02"))
}

// split separates delegated tasks from founder tasks, each capped.
func split(tasks []report.Task) (ea, founder []report.Task) {
	for _, t := range tasks {
		if t.Delegable() {
			if len(ea) < maxEATasksPerBucket {
				ea = append(ea, t)
			}
		} else if len(founder) < maxFounderTasksPerBucket {
			founder = append(founder, t)
		}
	}
	return ea, founder
}

// Render lays out the report on A4 pages.
func Render(in Input) (*Document, error) {
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	calc := in.ROI
	if calc == nil {
		rng := in.Lead.RevenueRange
		if rng == "" {
			rng = fallbackRevenueRange
		}
		c := roi.Calculate(DefaultTaskHours, rng)
		calc = &c
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle("EA Time Freedom Report", true)
	doc.SetAuthor("Assistant Launch", true)
	doc.SetMargins(18, 18, 18)
	doc.SetAutoPageBreak(true, 18)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()
	header(doc, tr, in)
	summary(doc, tr, calc, in.Result)
	analysis(doc, tr, calc)

	for _, b := range report.Buckets {
		ea, founder := split(in.Result.Tasks.Get(b))
		section(doc, tr, b, ea, founder)
	}

	footer(doc, tr)

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Document{Filename: Filename(in.Lead, in.Date), Bytes: buf.Bytes()}, nil
}

func setColor(doc *gofpdf.Fpdf, c rgb) { doc.SetTextColor(c.r, c.g, c.b) }

func header(doc *gofpdf.Fpdf, tr func(string) string, in Input) {
	name := in.Lead.FullName()
	if name == "" {
		name = "Business Owner"
	}

	setColor(doc, colorPrimary)
	doc.SetFont("Helvetica", "B", 22)
	doc.CellFormat(0, 12, tr("EA Time Freedom Report"), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 11)
	setColor(doc, colorText)
	doc.CellFormat(0, 6, tr(fmt.Sprintf("Prepared for %s  |  %s", name, in.Date.Format("January 2, 2006"))), "", 1, "L", false, 0, "")
	rule(doc)
}

func summary(doc *gofpdf.Fpdf, tr func(string) string, calc *roi.Calculation, r report.Result) {
	_, ea, _ := report.Counts(r)
	stats := []struct{ label, value string }{
		{"Annual value unlocked", roi.FormatCurrency(calc.AnnualRevenueUnlocked)},
		{"Hours freed per week", roi.FormatHours(calc.WeeklyHoursDelegated)},
		{"Tasks to delegate", fmt.Sprintf("%d", ea)},
		{"EA investment", roi.FormatCurrency(calc.EAInvestment)},
		{"Net return", roi.FormatCurrency(calc.NetReturn)},
		{"ROI", roi.FormatMultiplier(calc.ROIMultiplier)},
	}

	w := (210.0 - 36) / 3
	for i, s := range stats {
		if i%3 == 0 && i > 0 {
			doc.Ln(16)
		}
		x, y := doc.GetXY()
		setColor(doc, colorPrimary)
		doc.SetFont("Helvetica", "B", 15)
		doc.CellFormat(w, 8, tr(s.value), "", 2, "C", false, 0, "")
		setColor(doc, colorText)
		doc.SetFont("Helvetica", "", 9)
		doc.CellFormat(w, 5, tr(s.label), "", 0, "C", false, 0, "")
		doc.SetXY(x+w, y)
	}
	doc.Ln(18)
	rule(doc)
}

func analysis(doc *gofpdf.Fpdf, tr func(string) string, calc *roi.Calculation) {
	text := fmt.Sprintf("Based on your revenue level and the workload you described, you are spending roughly %s hours per week "+
		"on tasks that do not require your expertise. That is over %s hours per year that could go toward closing deals, "+
		"building relationships, or being present with your family.",
		roi.FormatHours(calc.WeeklyHoursDelegated), roi.FormatHours(calc.WeeklyHoursDelegated*roi.WeeksPerYear))

	setColor(doc, colorText)
	doc.SetFont("Helvetica", "", 10)
	doc.MultiCell(0, 5, tr(text), "", "L", false)
	doc.Ln(4)
}

func section(doc *gofpdf.Fpdf, tr func(string) string, b report.Bucket, ea, founder []report.Task) {
	setColor(doc, colorPrimary)
	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 9, tr(strings.ToUpper(string(b[:1]))+string(b[1:])+" tasks"), "", 1, "L", false, 0, "")

	for _, t := range ea {
		task(doc, tr, t, "EA", colorSecondary)
	}
	for _, t := range founder {
		task(doc, tr, t, "YOU", colorText)
	}
	doc.Ln(3)
}

func task(doc *gofpdf.Fpdf, tr func(string) string, t report.Task, badge string, badgeColor rgb) {
	setColor(doc, badgeColor)
	doc.SetFont("Helvetica", "B", 8)
	doc.CellFormat(12, 6, badge, "", 0, "L", false, 0, "")
	setColor(doc, colorPrimary)
	doc.SetFont("Helvetica", "B", 10)
	title := t.Title
	if t.IsCoreEATask {
		title += " *"
	}
	doc.CellFormat(0, 6, tr(title), "", 1, "L", false, 0, "")
	if t.Description != "" {
		setColor(doc, colorText)
		doc.SetFont("Helvetica", "", 9)
		doc.SetX(doc.GetX() + 12)
		doc.MultiCell(0, 4.5, tr(t.Description), "", "L", false)
	}
	doc.Ln(1)
}

func footer(doc *gofpdf.Fpdf, tr func(string) string) {
	rule(doc)
	setColor(doc, colorText)
	doc.SetFont("Helvetica", "I", 9)
	doc.MultiCell(0, 5, tr("* Core EA task included in every plan. Ready to reclaim your time? Book your discovery call at assistantlaunch.com."), "", "C", false)
}

func rule(doc *gofpdf.Fpdf) {
	doc.Ln(3)
	doc.SetDrawColor(colorRule.r, colorRule.g, colorRule.b)
	x, y := doc.GetXY()
	w, _ := doc.GetPageSize()
	_, _, right, _ := doc.GetMargins()
	doc.Line(x, y, w-right, y)
	doc.Ln(5)
}
