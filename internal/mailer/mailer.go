// Package mailer abstracts the outbound email provider. The dispatcher
// depends only on Sender; the SES implementation is selected at startup.
package mailer

import "context"

// Attachment is one file to include with a message.
type Attachment struct {
	Name        string
	ContentType string
	Base64      string
}

// Message is a fully personalized email ready for the provider.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	CampaignID  string
	ContactID   string
	Attachments []Attachment
}

// Sender delivers one message. Implementations must be safe for
// concurrent use; transient failures should be returned, not retried
// internally (the dispatcher owns retry policy).
type Sender interface {
	Send(ctx context.Context, msg *Message) (messageID string, err error)
}
