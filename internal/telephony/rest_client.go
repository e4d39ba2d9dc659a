package telephony

import (
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
)

// restRetryConfig governs transient failures on the one-shot REST actions
// below. The WebSocket vendor/carrier sessions use a circuit breaker plus
// Reconnect instead, since those hold a long-lived connection; a single
// REST call just needs a couple of quick retries before giving up.
var restRetryConfig = &resilience.RetryConfig{
	MaxAttempts:       3,
	InitialBackoff:    200 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// RESTClient performs the two carrier actions the Media Streams WebSocket
// protocol cannot express itself: playing a DTMF digit to get past an IVR
// gatekeeper, and forcing call teardown through the REST API (spec.md §4.6,
// "Gatekeeper bypass" and "Hangup semantics"). Only SendDTMFDigit has a
// caller; see ForceHangup.
type RESTClient struct {
	client *twilio.RestClient
}

// NewRESTClient builds a Twilio REST client from the configured account
// credentials.
func NewRESTClient(cfg *config.Config) *RESTClient {
	return &RESTClient{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		}),
	}
}

// SendDTMFDigit plays a single DTMF digit into the live call, used to get
// past an automated gatekeeper (e.g. "press 1 to continue") before the
// voice agent begins speaking.
func (r *RESTClient) SendDTMFDigit(callSID, digit string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(fmt.Sprintf(`<Response><Play digits="%s"/></Response>`, digit))

	err := resilience.Retry(func() error {
		_, err := r.client.Api.UpdateCall(callSID, params)
		return err
	}, restRetryConfig, resilience.IsRetryableNetworkError)
	if err != nil {
		return fmt.Errorf("telephony: failed to send dtmf digit %q: %w", digit, err)
	}
	return nil
}

// ForceHangup ends the call immediately by setting its status to
// completed. Nothing in this module calls it; the orchestrator ends a call
// by closing the carrier WebSocket.
func (r *RESTClient) ForceHangup(callSID string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")

	err := resilience.Retry(func() error {
		_, err := r.client.Api.UpdateCall(callSID, params)
		return err
	}, restRetryConfig, resilience.IsRetryableNetworkError)
	if err != nil {
		return fmt.Errorf("telephony: failed to force hangup: %w", err)
	}
	return nil
}
