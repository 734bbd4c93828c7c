package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	msgNameRequired    = "Name is required."
	msgEmailInvalid    = "Valid email is required."
	msgMessageRequired = "Please add a short project description."
	msgThanks          = "Thanks! I will reply within 1 business day."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func rejectedMessage(contactEmail string) string {
	return "Hmm, something went wrong. Email me directly at " + contactEmail
}

func networkErrorMessage(contactEmail string) string {
	return "Network error. Please email " + contactEmail
}

// ContactForm is a submission of the contact form. Website is the honeypot
// and stays empty for humans.
type ContactForm struct {
	Name    string `form:"name"`
	Email   string `form:"email"`
	Message string `form:"message"`
	Website string `form:"website"`
}

// FieldError is the first validation failure of a form.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// IsSpam reports whether the honeypot field was filled in.
func (f ContactForm) IsSpam() bool {
	return f.Website != ""
}

// Validate checks name, email and message in that order and returns the
// first failure, or nil.
func (f ContactForm) Validate() *FieldError {
	if strings.TrimSpace(f.Name) == "" {
		return &FieldError{Field: "name", Message: msgNameRequired}
	}
	if email := strings.TrimSpace(f.Email); email == "" || !emailPattern.MatchString(email) {
		return &FieldError{Field: "email", Message: msgEmailInvalid}
	}
	if strings.TrimSpace(f.Message) == "" {
		return &FieldError{Field: "message", Message: msgMessageRequired}
	}
	return nil
}

type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeRejected     Outcome = "rejected"
	OutcomeNetworkError Outcome = "network_error"
	OutcomeSpam         Outcome = "spam"
	OutcomeInvalid      Outcome = "invalid"
)

// Submitter delivers a valid form to wherever messages are collected.
type Submitter interface {
	Submit(ctx context.Context, form ContactForm) error
}

// RejectedError means the endpoint answered with a non-success status.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("contact endpoint returned status %d", e.Status)
}

// EndpointSubmitter posts the form, url-encoded, to a form backend such as
// Formspree. Only the status code of the response is inspected.
type EndpointSubmitter struct {
	Endpoint string
	Client   *http.Client
}

func (s *EndpointSubmitter) Submit(ctx context.Context, form ContactForm) error {
	body := url.Values{
		"name":    {strings.TrimSpace(form.Name)},
		"email":   {strings.TrimSpace(form.Email)},
		"message": {strings.TrimSpace(form.Message)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return fmt.Errorf("build contact request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post contact form: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{Status: resp.StatusCode}
	}
	return nil
}

// Notifier tells the site owner about a delivered message.
type Notifier interface {
	Notify(form ContactForm) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier mails each delivered message to the owner.
type SMTPNotifier struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *SMTPNotifier) Notify(form ContactForm) error {
	to := n.cfg.To
	if to == "" {
		to = n.cfg.User
	}
	name := strings.TrimSpace(form.Name)
	email := strings.TrimSpace(form.Email)

	subject := fmt.Sprintf("Portfolio Contact: %s", oneLine(name))
	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form
`, name, email, strings.TrimSpace(form.Message))

	msg := []byte("To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"From: " + n.cfg.User + "\r\n" +
		"Reply-To: " + oneLine(email) + "\r\n" +
		"\r\n" +
		body + "\r\n")

	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, n.cfg.Host)
	if err := n.sendMail(n.cfg.Host+":"+n.cfg.Port, auth, n.cfg.User, []string{to}, msg); err != nil {
		return fmt.Errorf("send notification mail: %w", err)
	}
	return nil
}

// oneLine strips line breaks so user input cannot add mail headers.
func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// SubmissionRecorder stores the outcome of each submission.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, visitor string, form ContactForm, outcome Outcome) error
}

// ContactView is the contact form as rendered after a submission.
type ContactView struct {
	Name        string
	Email       string
	Message     string
	FieldErrors map[string]string
	Status      string
	StatusKind  string
}

// ContactService runs the submit flow: honeypot, validation, delivery and
// the status shown to the visitor.
type ContactService struct {
	submitter    Submitter
	notifier     Notifier
	recorder     SubmissionRecorder
	contactEmail string
	logger       *zap.Logger
}

func NewContactService(submitter Submitter, notifier Notifier, recorder SubmissionRecorder, contactEmail string, logger *zap.Logger) *ContactService {
	return &ContactService{
		submitter:    submitter,
		notifier:     notifier,
		recorder:     recorder,
		contactEmail: contactEmail,
		logger:       logger,
	}
}

// Handle processes one submission. Every call starts from a form with no
// status and no field errors.
func (s *ContactService) Handle(ctx context.Context, form ContactForm, visitor string) ContactView {
	view := ContactView{Name: form.Name, Email: form.Email, Message: form.Message}

	if form.IsSpam() {
		s.record(ctx, visitor, form, OutcomeSpam)
		return view
	}

	if ferr := form.Validate(); ferr != nil {
		view.FieldErrors = map[string]string{ferr.Field: ferr.Message}
		s.record(ctx, visitor, form, OutcomeInvalid)
		return view
	}

	err := s.submitter.Submit(ctx, form)
	var rejected *RejectedError
	switch {
	case err == nil:
		s.record(ctx, visitor, form, OutcomeSent)
		s.notify(form)
		return ContactView{Status: msgThanks, StatusKind: "success"}
	case errors.As(err, &rejected):
		s.logger.Warn("contact endpoint rejected submission", zap.Int("status", rejected.Status))
		s.record(ctx, visitor, form, OutcomeRejected)
		view.Status = rejectedMessage(s.contactEmail)
	default:
		s.logger.Error("contact submission failed", zap.Error(err))
		s.record(ctx, visitor, form, OutcomeNetworkError)
		view.Status = networkErrorMessage(s.contactEmail)
	}
	view.StatusKind = "error"
	return view
}

func (s *ContactService) record(ctx context.Context, visitor string, form ContactForm, outcome Outcome) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordSubmission(ctx, visitor, form, outcome); err != nil {
		s.logger.Error("error recording contact submission", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}

func (s *ContactService) notify(form ContactForm) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(form); err != nil {
		s.logger.Error("error sending contact notification", zap.Error(err))
	}
}
