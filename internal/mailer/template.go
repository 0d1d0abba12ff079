package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"timefreedom/internal/roi"
)

const (
	calendlyURL = "https://calendly.com/assistantlaunch/discovery-call"
	companyURL  = "https://assistantlaunch.com"
)

// ReportData personalizes the report email. ROI is optional.
type ReportData struct {
	FirstName string
	ROI       *roi.Calculation
	ReportURL string
}

type templateData struct {
	ReportData
	Greeting      string
	AnnualRevenue string
	WeeklyHours   string
	Multiplier    string
	CalendlyURL   string
	CompanyURL    string
	Year          int
}

const htmlBody = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Your Time Freedom Report</title>
  </head>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #334155; background-color: #f1f5f9;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <div style="background-color: #0f172a; color: #ffffff; padding: 40px 30px; text-align: center; border-radius: 12px 12px 0 0;">
        <h1 style="margin: 0;">Your Time Freedom Report</h1>
      </div>
      <div style="background-color: #ffffff; padding: 30px;">
        <p>Hi {{ .Greeting }},</p>
        <p>Thank you for completing the Time Freedom assessment. Your personalized report is attached to this email.</p>
        {{- with .ROI }}
        <table width="100%" cellpadding="0" cellspacing="0" style="margin: 20px 0;">
          <tr>
            <td align="center" style="padding: 15px; background-color: #fefce8; border-radius: 8px;">
              <p style="margin: 0; text-transform: uppercase; font-size: 12px;">You could be earning an extra</p>
              <p style="margin: 0; font-size: 32px; font-weight: 800; color: #d97706;">{{ $.AnnualRevenue }}/year</p>
            </td>
          </tr>
          <tr>
            <td align="center" style="padding: 15px;">
              <strong>{{ $.WeeklyHours }}+</strong> hours/week freed &middot; <strong>{{ $.Multiplier }}</strong> ROI on EA investment
            </td>
          </tr>
        </table>
        {{- end }}
        <p>Your report includes:</p>
        <ul>
          <li>Task-by-task breakdown by frequency (daily, weekly, monthly)</li>
          <li>Which tasks can be delegated to an EA</li>
          <li>Complete ROI analysis</li>
        </ul>
        {{- if .ReportURL }}
        <p>You can also <a href="{{ .ReportURL }}">download your report here</a>.</p>
        {{- end }}
        <p style="text-align: center; margin: 30px 0;">
          <a href="{{ .CalendlyURL }}" style="display: inline-block; background-color: #2563eb; color: #ffffff; padding: 16px 32px; border-radius: 8px; text-decoration: none; font-weight: 600;">Book Your Discovery Call</a>
        </p>
      </div>
      <div style="background-color: #1e293b; color: #94a3b8; padding: 25px 30px; text-align: center; font-size: 12px; border-radius: 0 0 12px 12px;">
        <p style="margin: 0;">&copy; {{ .Year }} <a href="{{ .CompanyURL }}" style="color: #94a3b8;">Assistant Launch</a> | Time Freedom Starts Here</p>
      </div>
    </div>
  </body>
</html>
`

const textBody = `Hi {{ .Greeting }},

Thank you for completing the Time Freedom assessment. Your personalized report is attached to this email.
{{- with .ROI }}

You could be earning an extra {{ $.AnnualRevenue }}/year.
{{ $.WeeklyHours }}+ hours/week freed, {{ $.Multiplier }} ROI on EA investment.
{{- end }}
{{- if .ReportURL }}

Download your report: {{ .ReportURL }}
{{- end }}

Ready to reclaim your time? Book your discovery call:
{{ .CalendlyURL }}

{{ repeat 20 "-" }}
(c) {{ .Year }} Assistant Launch | {{ .CompanyURL }}
`

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.New("report.html").Funcs(sprig.HtmlFuncMap()).Parse(htmlBody))
	textTmpl = template.Must(template.New("report.txt").Funcs(sprig.TxtFuncMap()).Parse(textBody))
)

func newTemplateData(d ReportData, now time.Time) templateData {
	td := templateData{
		ReportData:  d,
		Greeting:    d.FirstName,
		CalendlyURL: calendlyURL,
		CompanyURL:  companyURL,
		Year:        now.Year(),
	}
	if td.Greeting == "" {
		td.Greeting = "there"
	}
	if d.ROI != nil {
		td.AnnualRevenue = roi.FormatCurrency(d.ROI.AnnualRevenueUnlocked)
		td.WeeklyHours = roi.FormatHours(d.ROI.WeeklyHoursDelegated)
		td.Multiplier = roi.FormatMultiplier(d.ROI.ROIMultiplier)
	}
	return td
}

// RenderHTML produces the HTML body of the report email.
func RenderHTML(d ReportData, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, newTemplateData(d, now)); err != nil {
		return "", fmt.Errorf("render html email: %w", err)
	}
	return buf.String(), nil
}

// RenderText produces the plain-text alternative.
func RenderText(d ReportData, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := textTmpl.Execute(&buf, newTemplateData(d, now)); err != nil {
		return "", fmt.Errorf("render text email: %w", err)
	}
	return buf.String(), nil
}
