package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/physioflow/pkg/logging"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "clinic@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "clinic@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "PhysioFlow", sender.fromName)
}

type fakeSendGrid struct {
	status int
	err    error
	last   *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.last = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := &SendGridSender{client: fake, fromEmail: "clinic@example.com", fromName: "Clinic", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com", Subject: "Your plan", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	require.NotNil(t, fake.last)
	assert.Equal(t, "Your plan", fake.last.Subject)
}

func TestSendGridSender_SendErrorStatus(t *testing.T) {
	sender := &SendGridSender{client: &fakeSendGrid{status: 401}, logger: logging.Default()}
	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com"})
	assert.Error(t, err)
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "clinic@example.com"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com", Subject: "Plan", Body: "text", HTML: "<b>html</b>"})
	require.NoError(t, err)
	assert.Equal(t, "PhysioFlow <clinic@example.com>", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"pat@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "<b>html</b>", aws.ToString(fake.input.Content.Simple.Body.Html.Data))
	assert.Equal(t, "text", aws.ToString(fake.input.Content.Simple.Body.Text.Data))
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "clinic@example.com"}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com"})
	assert.Error(t, err)
}

func TestNewSESSender_NilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}

func TestStubEmailSender_Send(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "recipient@example.com"}))
}
