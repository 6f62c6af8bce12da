// Package push delivers notifications to Expo push tokens.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Ticket statuses and the error codes the dispatcher acts on.
const (
	StatusOK    = "ok"
	StatusError = "error"

	ErrCodeDeviceNotRegistered = "DeviceNotRegistered"
	ErrCodeInvalidCredentials  = "InvalidCredentials"
	ErrCodeMessageTooBig       = "MessageTooBig"
	ErrCodeMessageRateExceeded = "MessageRateExceeded"

	// ErrCodeNoTicket marks a message the gateway returned no ticket for.
	ErrCodeNoTicket = "NoTicket"
	// ErrCodeTransport marks messages of a batch that never got a response.
	ErrCodeTransport = "TransportFailure"
)

// MaxBatchSize is the gateway's per-request message cap.
const MaxBatchSize = 100

// ErrTransport wraps failures worth retrying: timeouts, connection errors,
// 5xx responses and an open circuit.
var ErrTransport = errors.New("push gateway transport failure")

// Message is one push addressed to a single token.
type Message struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Data  any    `json:"data,omitempty"`
	Sound string `json:"sound,omitempty"`
	Badge int    `json:"badge,omitempty"`
}

type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// Ticket is the gateway's per-message verdict, in request order.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// ErrorCode returns details.error, or "" when absent.
func (t Ticket) ErrorCode() string {
	if t.Details == nil {
		return ""
	}
	return t.Details.Error
}

// Gateway sends one batch of at most MaxBatchSize messages.
type Gateway interface {
	Send(ctx context.Context, messages []Message) ([]Ticket, error)
}

// GatewayError is a non-retryable failure of a whole batch: a 4xx, or a
// 2xx whose body could not be decoded.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("push gateway rejected batch: status %d: %s", e.StatusCode, e.Body)
}

// TicketError describes one failed message.
type TicketError struct {
	Token   string `json:"token"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Result summarizes a dispatch.
type Result struct {
	Sent   int           `json:"sent"`
	Failed int           `json:"failed"`
	Errors []TicketError `json:"errors,omitempty"`
}

var tokenPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

// IsExpoPushToken reports whether token starts with one of the prefixes Expo
// issues.
func IsExpoPushToken(token string) bool {
	for _, prefix := range tokenPrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}
