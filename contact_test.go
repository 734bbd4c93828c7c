package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSubmitter struct {
	err   error
	calls []ContactForm
}

func (f *fakeSubmitter) Submit(_ context.Context, form ContactForm) error {
	f.calls = append(f.calls, form)
	return f.err
}

type fakeNotifier struct {
	sent []ContactForm
}

func (f *fakeNotifier) Notify(form ContactForm) error {
	f.sent = append(f.sent, form)
	return nil
}

type fakeRecorder struct {
	outcomes []Outcome
}

func (f *fakeRecorder) RecordSubmission(_ context.Context, _ string, _ ContactForm, outcome Outcome) error {
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

const ownerEmail = "owner@example.com"

func validForm() ContactForm {
	return ContactForm{Name: "Ada", Email: "a@b.com", Message: "I need a landing page."}
}

func newTestContactService(t *testing.T, sub Submitter) (*ContactService, *fakeNotifier, *fakeRecorder) {
	t.Helper()
	n := &fakeNotifier{}
	rec := &fakeRecorder{}
	return NewContactService(sub, n, rec, ownerEmail, zaptest.NewLogger(t)), n, rec
}

func TestContactFormValidate(t *testing.T) {
	cases := []struct {
		name  string
		form  ContactForm
		field string
		msg   string
	}{
		{"valid", validForm(), "", ""},
		{"missing name", ContactForm{Name: "  ", Email: "a@b.com", Message: "hi"}, "name", msgNameRequired},
		{"bad email", ContactForm{Name: "Ada", Email: "not-an-email", Message: "hi"}, "email", msgEmailInvalid},
		{"email without dot", ContactForm{Name: "Ada", Email: "a@b", Message: "hi"}, "email", msgEmailInvalid},
		{"email with space", ContactForm{Name: "Ada", Email: "a b@c.com", Message: "hi"}, "email", msgEmailInvalid},
		{"missing message", ContactForm{Name: "Ada", Email: "a@b.com"}, "message", msgMessageRequired},
		{"first failure only", ContactForm{}, "name", msgNameRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ferr := tc.form.Validate()
			if tc.field == "" {
				assert.Nil(t, ferr)
				return
			}
			require.NotNil(t, ferr)
			assert.Equal(t, tc.field, ferr.Field)
			assert.Equal(t, tc.msg, ferr.Message)
		})
	}
}

func TestHoneypotSkipsSubmission(t *testing.T) {
	for _, website := range []string{"http://spam.example.com", " ", "\t"} {
		t.Run(website, func(t *testing.T) {
			sub := &fakeSubmitter{}
			svc, notifier, rec := newTestContactService(t, sub)

			form := validForm()
			form.Website = website
			view := svc.Handle(context.Background(), form, "visitor")

			assert.Empty(t, sub.calls, "no request is issued")
			assert.Empty(t, notifier.sent)
			assert.Empty(t, view.Status, "status stays unchanged")
			assert.Empty(t, view.FieldErrors)
			assert.Equal(t, "Ada", view.Name)
			assert.Equal(t, []Outcome{OutcomeSpam}, rec.outcomes)
		})
	}
}

func TestInvalidFormShowsFieldError(t *testing.T) {
	sub := &fakeSubmitter{}
	svc, _, rec := newTestContactService(t, sub)

	view := svc.Handle(context.Background(), ContactForm{Email: "a@b.com", Message: "hi"}, "visitor")
	assert.Empty(t, sub.calls)
	assert.Equal(t, map[string]string{"name": msgNameRequired}, view.FieldErrors)
	assert.Empty(t, view.Status)
	assert.Equal(t, "a@b.com", view.Email, "values are kept")
	assert.Equal(t, []Outcome{OutcomeInvalid}, rec.outcomes)
}

func TestSuccessfulSubmissionClearsForm(t *testing.T) {
	sub := &fakeSubmitter{}
	svc, notifier, rec := newTestContactService(t, sub)

	view := svc.Handle(context.Background(), validForm(), "visitor")
	require.Len(t, sub.calls, 1)
	assert.Equal(t, ContactView{Status: msgThanks, StatusKind: "success"}, view)
	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, []Outcome{OutcomeSent}, rec.outcomes)
}

func TestRejectedSubmissionKeepsFields(t *testing.T) {
	sub := &fakeSubmitter{err: &RejectedError{Status: http.StatusUnprocessableEntity}}
	svc, notifier, rec := newTestContactService(t, sub)

	view := svc.Handle(context.Background(), validForm(), "visitor")
	assert.Equal(t, "Hmm, something went wrong. Email me directly at "+ownerEmail, view.Status)
	assert.Equal(t, "error", view.StatusKind)
	assert.Equal(t, "Ada", view.Name)
	assert.Equal(t, "I need a landing page.", view.Message)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, []Outcome{OutcomeRejected}, rec.outcomes)
}

func TestNetworkErrorKeepsFields(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("dial tcp: connection refused")}
	svc, _, rec := newTestContactService(t, sub)

	view := svc.Handle(context.Background(), validForm(), "visitor")
	assert.Equal(t, "Network error. Please email "+ownerEmail, view.Status)
	assert.Equal(t, "error", view.StatusKind)
	assert.Equal(t, "a@b.com", view.Email)
	assert.Equal(t, []Outcome{OutcomeNetworkError}, rec.outcomes)
}

func TestResubmitStartsFromCleanStatus(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("offline")}
	svc, _, _ := newTestContactService(t, sub)

	first := svc.Handle(context.Background(), validForm(), "visitor")
	require.NotEmpty(t, first.Status)

	sub.err = nil
	second := svc.Handle(context.Background(), ContactForm{Name: "Ada", Email: "bad"}, "visitor")
	assert.Empty(t, second.Status)
	assert.Equal(t, map[string]string{"email": msgEmailInvalid}, second.FieldErrors)
}

func TestEndpointSubmitterPostsForm(t *testing.T) {
	var got http.Header
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		got = r.Header.Clone()
		assert.NoError(t, r.ParseForm())
		body = r.PostForm.Encode()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &EndpointSubmitter{Endpoint: srv.URL, Client: srv.Client()}
	require.NoError(t, sub.Submit(context.Background(), ContactForm{Name: " Ada ", Email: "a@b.com", Message: "Hello"}))

	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "application/x-www-form-urlencoded", got.Get("Content-Type"))
	assert.Equal(t, "email=a%40b.com&message=Hello&name=Ada", body)
}

func TestEndpointSubmitterReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := (&EndpointSubmitter{Endpoint: srv.URL, Client: srv.Client()}).Submit(context.Background(), validForm())
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusInternalServerError, rejected.Status)
}

func TestEndpointSubmitterNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := (&EndpointSubmitter{Endpoint: url, Client: http.DefaultClient}).Submit(context.Background(), validForm())
	require.Error(t, err)
	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))
}

func TestSMTPNotifierBuildsMessage(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: "587", User: "me@example.com", Pass: "pw"})

	var addr string
	var to []string
	var msg string
	n.sendMail = func(a string, _ smtp.Auth, _ string, rcpt []string, m []byte) error {
		addr, to, msg = a, rcpt, string(m)
		return nil
	}

	require.NoError(t, n.Notify(ContactForm{Name: "Ada\r\nBcc: x@y.com", Email: "a@b.com", Message: "Hello there"}))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, []string{"me@example.com"}, to, "falls back to the SMTP user")
	assert.Contains(t, msg, "Subject: Portfolio Contact: Ada  Bcc: x@y.com\r\n")
	assert.Contains(t, msg, "Reply-To: a@b.com\r\n")
	assert.Contains(t, msg, "Hello there")
	headers := strings.SplitN(msg, "\r\n\r\n", 2)[0]
	assert.NotContains(t, headers, "\r\nBcc:", "user input cannot add headers")
}
