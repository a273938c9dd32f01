package delivery

import (
	"context"
	"errors"
	"mime"
	"time"
)

// Outcome of a single Send call that did not fail.
type Outcome int

const (
	// NotAttempted means no provider was available to take the message.
	NotAttempted Outcome = iota
	// Delivered means a provider accepted the message.
	Delivered
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	default:
		return "not_attempted"
	}
}

var (
	// ErrBulkUnavailable is returned by a bulk factory whose credentials are missing.
	ErrBulkUnavailable = errors.New("bulk provider unavailable")
	// ErrTransportUnavailable is returned by a transport factory that is not configured.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// Address is a sender or recipient with an optional display name.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name != "" {
		return mime.QEncoding.Encode("UTF-8", a.Name) + " <" + a.Email + ">"
	}
	return a.Email
}

// Message is one rendered, single-recipient campaign message.
type Message struct {
	From      Address
	To        string
	Subject   string
	HTML      string
	Variables map[string]any
}

// BulkSender submits a single-recipient batch that carries merge variables.
type BulkSender interface {
	Name() string
	SendBatch(ctx context.Context, msg *Message) error
}

// Transport hands one message directly to a mail server.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

type (
	BulkFactory      func() (BulkSender, error)
	TransportFactory func() (Transport, error)
)

// Renderer turns merge variables into the message body.
type Renderer interface {
	Render(vars map[string]any) string
}

// Quota records a successful delivery against the day's budget.
type Quota interface {
	Increment(ctx context.Context, day time.Time) error
}
