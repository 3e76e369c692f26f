package amqptransport

import (
	"context"
	"fmt"

	amqp "github.com/Azure/go-amqp"
)

// CBSAddress is the well-known management node used for claims-based
// security token exchange.
const CBSAddress = "$cbs"

// CBSLink is the sender/receiver pair bound to the "$cbs" node, used to
// put SAS tokens on behalf of a device. It is the concrete type behind the
// controller's opaque CBS handle.
type CBSLink struct {
	sender   *amqp.Sender
	receiver *amqp.Receiver
}

// OpenCBSLink opens a sender and receiver on the "$cbs" node of the
// session. It is only ever used while the device's AuthMode is
// AuthModeCBS.
func (s *Session) OpenCBSLink(ctx context.Context) (*CBSLink, error) {
	sender, err := s.session.NewSender(ctx, CBSAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("amqptransport: open cbs sender: %w", err)
	}

	receiver, err := s.session.NewReceiver(ctx, CBSAddress, nil)
	if err != nil {
		_ = sender.Close(ctx)
		return nil, fmt.Errorf("amqptransport: open cbs receiver: %w", err)
	}

	return &CBSLink{sender: sender, receiver: receiver}, nil
}

// PutToken sends a put-token request for audience carrying token and waits
// for the broker's response, returning the numeric status code reported in
// the response's application properties. A status in [200, 300) indicates
// success; the caller classifies any other status as an authentication
// failure.
//
// Grounded on the amenzhinsky iothub client's putToken exchange: a
// put-token message addressed To "$cbs" with ReplyTo "cbs", followed by a
// blocking receive of the next message on the "$cbs" receiver; the
// response's correlation id is not checked.
func (l *CBSLink) PutToken(ctx context.Context, audience, token string) (int, error) {
	to := CBSAddress
	replyTo := "cbs"
	msg := &amqp.Message{
		Value: token,
		Properties: &amqp.MessageProperties{
			To:      &to,
			ReplyTo: &replyTo,
		},
		ApplicationProperties: map[string]any{
			"operation": "put-token",
			"type":      "servicebus.windows.net:sastoken",
			"name":      audience,
		},
	}

	if err := l.sender.Send(ctx, msg, nil); err != nil {
		return 0, fmt.Errorf("amqptransport: send put-token: %w", err)
	}

	resp, err := l.receiver.Receive(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("amqptransport: receive put-token response: %w", err)
	}
	if err := l.receiver.AcceptMessage(ctx, resp); err != nil {
		return 0, fmt.Errorf("amqptransport: accept put-token response: %w", err)
	}

	return statusCode(resp)
}

// statusCode extracts the numeric "status-code" application property that
// CBS responses carry, per the AMQP CBS v1.0 specification.
func statusCode(msg *amqp.Message) (int, error) {
	if msg.ApplicationProperties == nil {
		return 0, fmt.Errorf("amqptransport: put-token response has no application properties")
	}
	raw, ok := msg.ApplicationProperties["status-code"]
	if !ok {
		return 0, fmt.Errorf("amqptransport: put-token response missing status-code")
	}
	switch v := raw.(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("amqptransport: unexpected status-code type %T", raw)
	}
}

// Close tears down both the sender and receiver. Safe to call more than
// once.
func (l *CBSLink) Close(ctx context.Context) error {
	var firstErr error
	if l.sender != nil {
		if err := l.sender.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if l.receiver != nil {
		if err := l.receiver.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
