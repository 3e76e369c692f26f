package messenger

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/Azure/go-amqp"

	"github.com/edgehub-go/devicesession/pkg/amqptransport"
	"github.com/edgehub-go/devicesession/pkg/clock"
	"github.com/edgehub-go/devicesession/pkg/log"
	"github.com/edgehub-go/devicesession/pkg/optionbag"
	"github.com/edgehub-go/devicesession/pkg/session"
)

// Config carries the per-device settings a Messenger needs at
// construction. It does not change after New.
type Config struct {
	DeviceID     string
	ConnectionID string
	Logger       log.Logger
	Clock        clock.Clock
}

// sendRequest is one outbound message queued for the send worker.
type sendRequest struct {
	msg        *amqp.Message
	onComplete session.MessengerSendCompleteFunc
}

// completion is a finished send, ready for DoWork to deliver.
type completion struct {
	onComplete session.MessengerSendCompleteFunc
	result     session.MessengerResult
}

// inbound is a received C2D message, ready for DoWork to dispatch.
type inbound struct {
	raw       *amqp.Message
	source    string
	messageID uint64
}

// Messenger is the telemetry messenger. It satisfies session.Messenger.
type Messenger struct {
	deviceID     string
	connectionID string
	logger       log.Logger
	clock        clock.Clock

	opener linkOpener

	sender   d2cSender
	receiver c2dReceiver

	state   session.MsgState
	stateCh chan session.MsgState

	linkTimeout time.Duration
	sendTimeout time.Duration

	callback session.MessengerC2DFunc

	sendQueue    chan sendRequest
	completionCh chan completion
	inboundCh    chan inbound

	mu        sync.Mutex
	nextMsgID uint64
	pending   map[uint64]*amqp.Message
	inFlight  int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Messenger for the device described by cfg. It does not
// open any link; that happens on Start.
func New(cfg Config) *Messenger {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Messenger{
		deviceID:     cfg.DeviceID,
		connectionID: cfg.ConnectionID,
		logger:       logger,
		clock:        clk,
		state:        session.MsgStopped,
		linkTimeout:  30 * time.Second,
		sendTimeout:  60 * time.Second,
		stateCh:      make(chan session.MsgState, 8),
		sendQueue:    make(chan sendRequest, 64),
		completionCh: make(chan completion, 64),
		inboundCh:    make(chan inbound, 64),
		pending:      make(map[uint64]*amqp.Message),
	}
}

// Start records the session handle and announces MsgStarting. Opening the
// D2C/C2D links is deferred to the next DoWork tick, matching the
// controller's pump model (mirrors authenticator.Start).
func (m *Messenger) Start(sess *amqptransport.Session) error {
	if sess == nil {
		return fmt.Errorf("messenger: session handle is required")
	}
	m.opener = sessionOpener{sess: sess}
	m.setState(session.MsgStarting)
	return nil
}

// Stop tears down both links and the worker goroutines, then announces
// MsgStopped.
func (m *Messenger) Stop() error {
	if m.stopCh != nil {
		close(m.stopCh)
		m.wg.Wait()
		m.stopCh = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.linkTimeout)
	defer cancel()
	if m.sender != nil {
		_ = m.sender.Close(ctx)
		m.sender = nil
	}
	if m.receiver != nil {
		_ = m.receiver.Close(ctx)
		m.receiver = nil
	}
	m.setState(session.MsgStopped)
	return nil
}

// DoWork advances link setup while starting, and otherwise drains
// completed sends and inbound deliveries accumulated by the background
// workers since the last tick.
func (m *Messenger) DoWork() {
	switch m.state {
	case session.MsgStarting:
		m.openLinks()
	case session.MsgStarted:
		m.drainCompletions()
		m.drainInbound()
	}
}

func (m *Messenger) openLinks() {
	ctx, cancel := context.WithTimeout(context.Background(), m.linkTimeout)
	defer cancel()

	sender, err := m.opener.NewSender(ctx, d2cAddress(m.deviceID))
	if err != nil {
		m.fail("open d2c sender: " + err.Error())
		return
	}
	receiver, err := m.opener.NewReceiver(ctx, c2dAddress(m.deviceID))
	if err != nil {
		_ = sender.Close(ctx)
		m.fail("open c2d receiver: " + err.Error())
		return
	}

	m.sender = sender
	m.receiver = receiver
	m.stopCh = make(chan struct{})

	m.wg.Add(2)
	go m.sendWorker(m.stopCh)
	go m.receiveWorker(m.stopCh)

	m.setState(session.MsgStarted)
}

// sendWorker performs one blocking send at a time, in submission order,
// and reports each completion on completionCh. It never touches
// Controller state; DoWork alone drains completionCh.
func (m *Messenger) sendWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case req := <-m.sendQueue:
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			err := m.sender.Send(ctx, req.msg, nil)
			cancel()

			result := session.MessengerResultOK
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					result = session.MessengerResultTimeout
				} else {
					result = session.MessengerResultFailSending
				}
			}
			m.decInFlight()
			select {
			case m.completionCh <- completion{onComplete: req.onComplete, result: result}:
			case <-stop:
				return
			}
		}
	}
}

// receiveWorker blocks on Receive in a loop and forwards each delivered
// message to inboundCh, tagging it with a locally assigned message ID.
func (m *Messenger) receiveWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		msg, err := m.receiver.Receive(ctx, nil)
		cancel()
		if err != nil {
			select {
			case <-stop:
				return
			default:
				continue
			}
		}

		id := m.nextMessageID()
		m.mu.Lock()
		m.pending[id] = msg
		m.mu.Unlock()

		select {
		case m.inboundCh <- inbound{raw: msg, source: c2dAddress(m.deviceID), messageID: id}:
		case <-stop:
			return
		}
	}
}

func (m *Messenger) drainCompletions() {
	for {
		select {
		case c := <-m.completionCh:
			if c.onComplete != nil {
				c.onComplete(c.result)
			}
		default:
			return
		}
	}
}

func (m *Messenger) drainInbound() {
	for {
		select {
		case in := <-m.inboundCh:
			m.dispatch(in)
		default:
			return
		}
	}
}

func (m *Messenger) dispatch(in inbound) {
	verdict := session.VerdictReleased
	if m.callback != nil {
		verdict = m.callback(payloadOf(in.raw), in.source, in.messageID)
	}
	m.applyDisposition(in.messageID, verdict)
}

// payloadOf extracts the raw message body bytes from an AMQP message.
func payloadOf(msg *amqp.Message) []byte {
	if msg == nil {
		return nil
	}
	if len(msg.Data) > 0 {
		return msg.Data[0]
	}
	return nil
}

func (m *Messenger) applyDisposition(messageID uint64, verdict session.Verdict) error {
	m.mu.Lock()
	raw, ok := m.pending[messageID]
	if ok {
		delete(m.pending, messageID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("messenger: no pending message with id %d", messageID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.linkTimeout)
	defer cancel()

	switch verdict {
	case session.VerdictAccepted, session.VerdictNone:
		return m.receiver.AcceptMessage(ctx, raw)
	case session.VerdictRejected:
		return m.receiver.RejectMessage(ctx, raw, &amqp.Error{Condition: "com.microsoft:message-rejected"})
	default:
		return m.receiver.ReleaseMessage(ctx, raw)
	}
}

// SendAsync queues msg for the send worker. onComplete fires exactly once,
// from inside a later DoWork tick, once the worker reports completion.
func (m *Messenger) SendAsync(msg []byte, onComplete session.MessengerSendCompleteFunc) error {
	if m.state != session.MsgStarted {
		return fmt.Errorf("messenger: not started")
	}
	amqpMsg := &amqp.Message{Data: [][]byte{msg}}
	m.incInFlight()
	select {
	case m.sendQueue <- sendRequest{msg: amqpMsg, onComplete: onComplete}:
		return nil
	default:
		m.decInFlight()
		return fmt.Errorf("messenger: send queue full")
	}
}

// GetSendStatus reports SendStatusBusy while any send is queued or being
// transmitted, SendStatusIdle otherwise.
func (m *Messenger) GetSendStatus() (session.SendStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight > 0 {
		return session.SendStatusBusy, nil
	}
	return session.SendStatusIdle, nil
}

// Subscribe records cb as the C2D dispatch target. The previous link state
// is unaffected: a Messenger that is not yet started simply has no
// inbound messages to dispatch until it reaches MsgStarted.
func (m *Messenger) Subscribe(cb session.MessengerC2DFunc) error {
	if cb == nil {
		return fmt.Errorf("messenger: callback is required")
	}
	m.callback = cb
	return nil
}

// Unsubscribe clears the recorded callback; subsequent deliveries are
// released without being dispatched.
func (m *Messenger) Unsubscribe() error {
	m.callback = nil
	return nil
}

// SendMessageDisposition applies verdict to the pending message identified
// by messageID (source is not consulted), for callers disposing a message
// outside the Subscribe callback's own return value.
func (m *Messenger) SendMessageDisposition(source string, messageID uint64, verdict session.Verdict) error {
	return m.applyDisposition(messageID, verdict)
}

// SetOption handles event_send_timeout_secs; any other name is an error.
func (m *Messenger) SetOption(name string, value any) error {
	switch name {
	case session.OptionEventSendTimeoutSecs:
		secs, ok := asUint32(value)
		if !ok {
			return fmt.Errorf("messenger: %s expects a uint32 value, got %T", name, value)
		}
		m.sendTimeout = time.Duration(secs) * time.Second
		return nil
	default:
		return fmt.Errorf("messenger: unknown option %s", name)
	}
}

// RetrieveOptions returns a bag containing the current
// event_send_timeout_secs value.
func (m *Messenger) RetrieveOptions() (*optionbag.Bag, error) {
	bag := optionbag.New()
	bag.SetLeaf(session.OptionEventSendTimeoutSecs, uint32(m.sendTimeout/time.Second))
	return bag, nil
}

// StateChanges implements session.Messenger.
func (m *Messenger) StateChanges() <-chan session.MsgState { return m.stateCh }

func (m *Messenger) setState(s session.MsgState) {
	m.state = s
	m.stateCh <- s
}

func (m *Messenger) fail(reason string) {
	m.logger.Log(log.Event{
		ConnectionID: m.connectionID,
		Layer:        log.LayerMessenger,
		Category:     log.CategoryError,
		DeviceID:     m.deviceID,
		Error:        &log.ErrorEventData{Layer: log.LayerMessenger, Message: reason},
	})
	m.setState(session.MsgError)
}

func (m *Messenger) nextMessageID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	return m.nextMsgID
}

func (m *Messenger) incInFlight() {
	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()
}

func (m *Messenger) decInFlight() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func asUint32(value any) (uint32, bool) {
	switch v := value.(type) {
	case uint32:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint32(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint32(v), true
	default:
		return 0, false
	}
}

var _ session.Messenger = (*Messenger)(nil)
