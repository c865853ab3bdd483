package notify

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioCaller places voice calls that speak a fixed announcement.
// Params: REST client and caller number.
// Returns: caller using inline TwiML, no webhook endpoint needed.
type TwilioCaller struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioCallerFromEnv builds the caller from the environment.
// Params: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER.
// Returns: caller, or an error naming the missing variable.
func NewTwilioCallerFromEnv() (*TwilioCaller, error) {
	sid := os.Getenv("TWILIO_ACCOUNT_SID")
	token := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_FROM_NUMBER")
	if sid == "" || token == "" {
		return nil, fmt.Errorf("twilio credentials not set")
	}
	if from == "" {
		return nil, fmt.Errorf("TWILIO_FROM_NUMBER not set")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: sid,
		Password: token,
	})
	return &TwilioCaller{client: client, from: from}, nil
}

// Call places one announcement call.
// Params: context, destination number, spoken announcement.
// Returns: API error when the call cannot be created.
func (t *TwilioCaller) Call(ctx context.Context, to, announcement string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetTwiml(announcementTwiML(announcement))

	if _, err := t.client.Api.CreateCall(params); err != nil {
		return fmt.Errorf("place call: %w", err)
	}
	return nil
}

// announcementTwiML renders the spoken-response document.
// Params: announcement text.
// Returns: TwiML with the text XML-escaped.
func announcementTwiML(text string) string {
	var buf bytes.Buffer
	buf.WriteString("<Response><Say>")
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		buf.WriteString(text)
	}
	buf.WriteString("</Say></Response>")
	return buf.String()
}
