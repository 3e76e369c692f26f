package messenger

import (
	"context"

	amqp "github.com/Azure/go-amqp"

	"github.com/edgehub-go/devicesession/pkg/amqptransport"
)

// d2cSender is the subset of *amqp.Sender this package depends on,
// narrowed to make the send path fakeable in tests without a live broker.
type d2cSender interface {
	Send(ctx context.Context, msg *amqp.Message, opts *amqp.SendOptions) error
	Close(ctx context.Context) error
}

// c2dReceiver is the subset of *amqp.Receiver this package depends on.
type c2dReceiver interface {
	Receive(ctx context.Context, opts *amqp.ReceiveOptions) (*amqp.Message, error)
	AcceptMessage(ctx context.Context, msg *amqp.Message) error
	RejectMessage(ctx context.Context, msg *amqp.Message, e *amqp.Error) error
	ReleaseMessage(ctx context.Context, msg *amqp.Message) error
	Close(ctx context.Context) error
}

// linkOpener opens the D2C sender and C2D receiver links this package
// needs. It exists so Messenger depends on an interface rather than
// *amqptransport.Session directly, the same seam amqptransport.CBSLink's
// cbsPutter interface gives pkg/authenticator: tests provide a fake
// opener instead of dialing a live broker.
type linkOpener interface {
	NewSender(ctx context.Context, addr string) (d2cSender, error)
	NewReceiver(ctx context.Context, addr string) (c2dReceiver, error)
}

// sessionOpener adapts *amqptransport.Session to linkOpener. The adaption
// is needed only because *amqp.Sender/*amqp.Receiver are concrete types:
// Session.NewSender/NewReceiver already return exactly the methods
// d2cSender/c2dReceiver name, but Go requires an exact signature match to
// satisfy an interface, not just a compatible one.
type sessionOpener struct {
	sess *amqptransport.Session
}

func (o sessionOpener) NewSender(ctx context.Context, addr string) (d2cSender, error) {
	return o.sess.NewSender(ctx, addr)
}

func (o sessionOpener) NewReceiver(ctx context.Context, addr string) (c2dReceiver, error) {
	return o.sess.NewReceiver(ctx, addr)
}

// d2cAddress returns the D2C event-send link target for deviceID.
func d2cAddress(deviceID string) string {
	return "devices/" + deviceID + "/messages/events"
}

// c2dAddress returns the C2D receive link source for deviceID.
func c2dAddress(deviceID string) string {
	return "devices/" + deviceID + "/messages/devicebound"
}
