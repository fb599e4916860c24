package treatment

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/wolfman30/physioflow/internal/soap"
)

const planSections = `{{define "sections"}}
{{if .Narrative}}<p class="narrative">{{.Narrative}}</p>{{end}}
{{if .Subjective}}<h2>What you told us</h2>
<p>{{.Subjective}}</p>{{end}}
{{if .Assessment}}<h2>Our assessment</h2>
<p>{{.Assessment}}</p>{{end}}
{{if .PlanText}}<h2>Your plan</h2>
<p>{{.PlanText}}</p>{{end}}
<h2>Your exercises</h2>
{{if .Exercises}}<ol>
{{range .Exercises}}<li><strong>{{.Name}}</strong>: {{.Dosage}}{{if .Instructions}}<br>{{.Instructions}}{{end}}{{if .Notes}}<br><em>{{.Notes}}</em>{{end}}</li>
{{end}}</ol>{{else}}<p>No exercises were prescribed.</p>{{end}}
{{end}}`

const emailTemplate = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1f2933; max-width: 640px;">
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{template "sections" .}}
{{if .Link}}<p><a href="{{.Link}}">View your treatment plan online</a></p>{{end}}
</body></html>`

const pageTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2933; max-width: 720px; margin: 0 auto;">
<h1>{{.Title}}</h1>
{{template "sections" .}}
</body></html>`

// Message is the clinician-authored part of the email.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Email is a rendered plan ready for delivery.
type Email struct {
	Subject string
	HTML    string
	Link    string
}

type exerciseView struct {
	Name         string
	Dosage       string
	Instructions string
	Notes        string
}

type planView struct {
	Title      string
	Message    string
	Narrative  string
	Subjective string
	Assessment string
	PlanText   string
	Exercises  []exerciseView
	Link       string
}

// Composer renders the patient-facing plan. The objective section is
// clinician-only and never rendered.
type Composer struct {
	baseURL string
	email   *template.Template
	page    *template.Template
}

func NewComposer(publicBaseURL string) *Composer {
	return &Composer{
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		email:   mustParse("email", emailTemplate),
		page:    mustParse("page", pageTemplate),
	}
}

func mustParse(name, text string) *template.Template {
	base := template.Must(template.New("plan").Parse(planSections))
	return template.Must(base.New(name).Parse(text))
}

// PlanURL is the public viewer address of a plan.
func (c *Composer) PlanURL(planID string) string {
	return c.baseURL + "/plans/" + planID
}

func newPlanView(plan *Plan, note soap.Summary, narrative string) planView {
	v := planView{
		Title:      "Your treatment plan",
		Narrative:  strings.TrimSpace(narrative),
		Subjective: note.Subjective,
		Assessment: note.Assessment,
		PlanText:   note.Plan,
	}
	for _, item := range plan.Exercises {
		v.Exercises = append(v.Exercises, exerciseView{
			Name:         item.Exercise.Name,
			Dosage:       item.Dosage(),
			Instructions: item.Exercise.Instructions,
			Notes:        item.Notes,
		})
	}
	return v
}

// ComposeEmail renders the delivery email with a link to the public page.
func (c *Composer) ComposeEmail(plan *Plan, note soap.Summary, narrative string, msg Message) (*Email, error) {
	v := newPlanView(plan, note, narrative)
	v.Message = strings.TrimSpace(msg.Body)
	v.Link = c.PlanURL(plan.ID)

	var buf bytes.Buffer
	if err := c.email.ExecuteTemplate(&buf, "email", v); err != nil {
		return nil, fmt.Errorf("treatment: render email: %w", err)
	}
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "Your treatment plan"
	}
	return &Email{Subject: subject, HTML: buf.String(), Link: v.Link}, nil
}

// RenderPage renders the public viewer page.
func (c *Composer) RenderPage(plan *Plan, note soap.Summary, narrative string) (string, error) {
	var buf bytes.Buffer
	if err := c.page.ExecuteTemplate(&buf, "page", newPlanView(plan, note, narrative)); err != nil {
		return "", fmt.Errorf("treatment: render page: %w", err)
	}
	return buf.String(), nil
}
