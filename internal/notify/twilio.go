package notify

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio SMS sender.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// TwilioOption defines a configuration option for the Twilio SMS sender.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// WithToNumber sets the user's phone number reminders are delivered to.
func WithToNumber(to string) TwilioOption {
	return func(o *TwilioOpts) { o.To = to }
}

// TwilioSender delivers reminders as SMS messages through the Twilio API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewTwilioSender creates a Twilio-backed Sender. Options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and
// TWILIO_TO_NUMBER environment variables.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("TWILIO_TO_NUMBER")
	}

	slog.Debug("Twilio sender config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioSender{client: client, from: cfg.From, to: cfg.To}, nil
}

// Send delivers the payload as a single SMS.
func (s *TwilioSender) Send(payload models.NotificationPayload) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("%s\n%s", payload.Title, payload.Body))

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSender Send failed", "error", err, "kind", payload.Kind)
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	slog.Debug("TwilioSender Send succeeded", "kind", payload.Kind)
	return nil
}
