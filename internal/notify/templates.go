package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"talentCorner/internal/config"
	"talentCorner/internal/database"
	"talentCorner/internal/mailer"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

var htmlPages = []string{"invite", "evaluation", "selection"}

// Renderer 渲染各类通知邮件。
type Renderer struct {
	pages map[string]*htmltemplate.Template
	text  *texttemplate.Template
	cfg   config.NotifyConfig
}

// NewRenderer parses the embedded templates once.
func NewRenderer(cfg config.NotifyConfig) (*Renderer, error) {
	if cfg.Brand == "" {
		cfg.Brand = "Talent Corner"
	}

	layout, err := htmltemplate.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	pages := make(map[string]*htmltemplate.Template, len(htmlPages))
	for _, name := range htmlPages {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = t
	}

	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{pages: pages, text: text, cfg: cfg}, nil
}

type pageData struct {
	Brand     string
	LogoURL   string
	Heading   string
	Name      string
	FormURL   string
	Domain    string
	SubDomain string
	Rank      int
}

func (r *Renderer) page(name string, data pageData) (string, error) {
	data.Brand = r.cfg.Brand
	data.LogoURL = r.cfg.LogoURL
	var buf bytes.Buffer
	if err := r.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) plain(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.text.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Invite is sent to imported contacts, linking to the intake form.
func (r *Renderer) Invite(name, to string) (mailer.Message, error) {
	body, err := r.page("invite", pageData{Heading: "Thank You!", Name: name, FormURL: r.cfg.InviteFormURL})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{To: to, Subject: "Form Submission Invitation", HTML: body}, nil
}

// Evaluation is sent to intake-form candidates, linking to the domain assessment.
func (r *Renderer) Evaluation(name, to string) (mailer.Message, error) {
	body, err := r.page("evaluation", pageData{Heading: "Thank You!", Name: name, FormURL: r.cfg.EvaluationFormURL})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{To: to, Subject: "Your Access Token for the Form", HTML: body}, nil
}

// Selection tells a ranked candidate they were chosen.
func (r *Renderer) Selection(name, to, domain, subDomain string, rank int) (mailer.Message, error) {
	body, err := r.page("selection", pageData{
		Heading:   "Congratulations!",
		Name:      name,
		Domain:    domain,
		SubDomain: subDomain,
		Rank:      rank,
	})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{To: to, Subject: "You have been selected - " + r.cfg.Brand, HTML: body}, nil
}

// OrgCandidate is the plain-text note an organization sends from its own address.
func (r *Renderer) OrgCandidate(org, orgEmail, name, to, subDomain string) (mailer.Message, error) {
	body, err := r.plain("org_candidate.txt", map[string]string{
		"Name":         name,
		"SubDomain":    subDomain,
		"Organization": org,
		"OrgEmail":     orgEmail,
	})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		FromName: org,
		From:     orgEmail,
		ReplyTo:  orgEmail,
		To:       to,
		Subject:  fmt.Sprintf("%s: %s Opportunity", org, r.cfg.Brand),
		Text:     body,
	}, nil
}

// OTP renders the signup or password reset code email.
func (r *Renderer) OTP(purpose, to, code string, ttl time.Duration) (mailer.Message, error) {
	subject := "Your OTP for " + r.cfg.Brand + " Sign Up"
	name := "otp_signup.txt"
	if purpose == database.OTPPurposeReset {
		subject = "Your Password Reset OTP for " + r.cfg.Brand
		name = "otp_reset.txt"
	}
	body, err := r.plain(name, map[string]string{"OTP": code, "TTL": humanDuration(ttl)})
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{To: to, Subject: subject, Text: body}, nil
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
