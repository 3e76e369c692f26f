package session

import "github.com/edgehub-go/devicesession/pkg/amqptransport"

// MessengerSendCompleteFunc is invoked by the messenger exactly once per
// submitted message, in the messenger's own result vocabulary. The
// Send-Task Tracker (sendtask.go) translates it into the caller
// vocabulary.
type MessengerSendCompleteFunc func(result MessengerResult)

// MessengerC2DFunc is invoked by the messenger for each inbound message
// delivered while subscribed. The Controller's C2D Message Adapter
// (c2d.go) translates the descriptor and dispatches to the caller.
type MessengerC2DFunc func(msg []byte, source string, messageID uint64) Verdict

// Authenticator is the CBS authentication worker child contract the
// Controller consumes (spec.md §6): create/destroy are the collaborator's
// own constructor/Stop sequence, Start/Stop/DoWork/SetOption/
// RetrieveOptions match §6 verbatim, and StateChanges/ErrorCodes realize
// the "two event streams" as buffered channels drained only from inside
// Controller.DoWork.
type Authenticator interface {
	Start(cbs *amqptransport.CBSLink) error
	Stop() error
	DoWork()
	SetOption(name string, value any) error
	RetrieveOptions() (*OptionBag, error)
	StateChanges() <-chan AuthState
	ErrorCodes() <-chan AuthErrorCode
}

// Messenger is the telemetry messenger child contract the Controller
// consumes (spec.md §6).
type Messenger interface {
	Start(sess *amqptransport.Session) error
	Stop() error
	DoWork()
	SendAsync(msg []byte, onComplete MessengerSendCompleteFunc) error
	GetSendStatus() (SendStatus, error)
	Subscribe(cb MessengerC2DFunc) error
	Unsubscribe() error
	SendMessageDisposition(source string, messageID uint64, verdict Verdict) error
	SetOption(name string, value any) error
	RetrieveOptions() (*OptionBag, error)
	StateChanges() <-chan MsgState
}
