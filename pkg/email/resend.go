package email

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

type Config struct {
	APIKey      string
	FromAddress string
	FromName    string
	// CourseURL may contain {courseId}.
	CourseURL string
	// Timeout bounds each call to the Resend API. Zero means 10s.
	Timeout time.Duration
}

type sender interface {
	Send(params *resend.SendEmailRequest) (resend.SendEmailResponse, error)
}

type EmailService struct {
	emails    sender
	from      string
	fromName  string
	courseURL string
	templates *template.Template
	logger    *zap.Logger
}

func NewEmailService(cfg Config, log *zap.Logger) *EmailService {
	client := resend.NewCustomClient(newHTTPClient(cfg.Timeout), cfg.APIKey)
	return newEmailService(client.Emails, cfg, log)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func newEmailService(emails sender, cfg Config, log *zap.Logger) *EmailService {
	return &EmailService{
		emails:    emails,
		from:      cfg.FromAddress,
		fromName:  cfg.FromName,
		courseURL: cfg.CourseURL,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		logger:    log.Named("email"),
	}
}

func (s *EmailService) SendEnrollmentConfirmation(email, fullName, courseTitle string, courseID uint) error {
	s.logger.Info("sending enrollment email", zap.String("to", email), zap.Uint("course_id", courseID))

	templateData := map[string]interface{}{
		"FullName":    fullName,
		"CourseTitle": courseTitle,
		"CourseLink":  strings.ReplaceAll(s.courseURL, "{courseId}", strconv.FormatUint(uint64(courseID), 10)),
		"Year":        time.Now().Year(),
	}

	html, err := s.render("enrollment.html", templateData)
	if err != nil {
		s.logger.Error("failed to render enrollment template", zap.String("to", email), zap.Error(err))
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.fromName + " <" + s.from + ">",
		To:      []string{email},
		Subject: "You're enrolled in " + courseTitle,
		Html:    html,
	}

	resp, err := s.emails.Send(params)
	if err != nil {
		s.logger.Error("failed to send enrollment email", zap.String("to", email), zap.Error(err))
		return err
	}

	s.logger.Info("sent enrollment email", zap.String("to", email), zap.String("id", resp.Id))
	return nil
}

func (s *EmailService) render(name string, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", err
	}
	return body.String(), nil
}
