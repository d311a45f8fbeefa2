package notification

import (
	"errors"
	"fmt"
)

// Client-facing descriptions of notification failures. Transport detail stays
// in the wrapped error and the logs.
const (
	SendFailedMessage  = "doctor notification could not be delivered"
	UnavailableMessage = "messaging service unavailable"
)

// InvalidDataError rejects a malformed triage event.
type InvalidDataError struct {
	Reason string
}

func (e *InvalidDataError) Error() string {
	return "invalid notification data: " + e.Reason
}

// MessagingUnavailableError means the messaging backend reported itself
// disconnected. Nothing was published.
type MessagingUnavailableError struct{}

func (e *MessagingUnavailableError) Error() string {
	return UnavailableMessage
}

// SendError wraps a publish failure with the patient it concerned. Message is
// safe to show to staff. Error() carries the transport error for logs.
type SendError struct {
	PatientID string
	Message   string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send notification for patient %s: %v", e.PatientID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// PublicMessage describes err without transport internals.
func PublicMessage(err error) string {
	var (
		sendErr     *SendError
		unavailable *MessagingUnavailableError
		invalid     *InvalidDataError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unavailable):
		return UnavailableMessage
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.As(err, &sendErr) && sendErr.Message != "":
		return sendErr.Message
	}
	return SendFailedMessage
}
