package session

import (
	"github.com/edgehub-go/devicesession/pkg/amqptransport"
	"github.com/edgehub-go/devicesession/pkg/optionbag"
)

// fakeAuthenticator is a hand-written stand-in for the CBS authentication
// worker, following the teacher's mockResponseConnection pattern: its
// behavior is entirely driven by the test via exported fields and the
// pushState/pushError helpers, never by goroutines of its own.
type fakeAuthenticator struct {
	startErr error
	stopErr  error
	started  bool
	stopped  bool
	doWorks  int

	stateCh chan AuthState
	errCh   chan AuthErrorCode

	options map[string]any
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{
		stateCh: make(chan AuthState, 16),
		errCh:   make(chan AuthErrorCode, 16),
		options: make(map[string]any),
	}
}

func (f *fakeAuthenticator) Start(cbs *amqptransport.CBSLink) error {
	f.started = true
	return f.startErr
}

func (f *fakeAuthenticator) Stop() error {
	f.stopped = true
	return f.stopErr
}

func (f *fakeAuthenticator) DoWork() { f.doWorks++ }

func (f *fakeAuthenticator) SetOption(name string, value any) error {
	f.options[name] = value
	return nil
}

func (f *fakeAuthenticator) RetrieveOptions() (*OptionBag, error) {
	bag := optionbag.New()
	for k, v := range f.options {
		bag.SetLeaf(k, v)
	}
	return bag, nil
}

func (f *fakeAuthenticator) StateChanges() <-chan AuthState     { return f.stateCh }
func (f *fakeAuthenticator) ErrorCodes() <-chan AuthErrorCode   { return f.errCh }
func (f *fakeAuthenticator) pushState(s AuthState)              { f.stateCh <- s }
func (f *fakeAuthenticator) pushError(c AuthErrorCode)          { f.errCh <- c }

// fakeMessenger is the Messenger counterpart.
type fakeMessenger struct {
	startErr     error
	stopErr      error
	subscribeErr error
	sendErr      error
	status       SendStatus

	started bool
	stopped bool
	doWorks int

	c2d          MessengerC2DFunc
	pendingSends []MessengerSendCompleteFunc
	lastSource   string
	lastMsgID    uint64
	lastVerdict  Verdict

	stateCh chan MsgState
	options map[string]any
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		stateCh: make(chan MsgState, 16),
		options: make(map[string]any),
	}
}

func (f *fakeMessenger) Start(sess *amqptransport.Session) error {
	f.started = true
	return f.startErr
}

func (f *fakeMessenger) Stop() error {
	f.stopped = true
	return f.stopErr
}

func (f *fakeMessenger) DoWork() { f.doWorks++ }

func (f *fakeMessenger) SendAsync(msg []byte, onComplete MessengerSendCompleteFunc) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.pendingSends = append(f.pendingSends, onComplete)
	return nil
}

func (f *fakeMessenger) GetSendStatus() (SendStatus, error) { return f.status, nil }

func (f *fakeMessenger) Subscribe(cb MessengerC2DFunc) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.c2d = cb
	return nil
}

func (f *fakeMessenger) Unsubscribe() error {
	f.c2d = nil
	return nil
}

func (f *fakeMessenger) SendMessageDisposition(source string, messageID uint64, verdict Verdict) error {
	f.lastSource = source
	f.lastMsgID = messageID
	f.lastVerdict = verdict
	return nil
}

func (f *fakeMessenger) SetOption(name string, value any) error {
	f.options[name] = value
	return nil
}

func (f *fakeMessenger) RetrieveOptions() (*OptionBag, error) {
	bag := optionbag.New()
	for k, v := range f.options {
		bag.SetLeaf(k, v)
	}
	return bag, nil
}

func (f *fakeMessenger) StateChanges() <-chan MsgState { return f.stateCh }
func (f *fakeMessenger) pushState(s MsgState)          { f.stateCh <- s }

// completeOldest pops the oldest pending send completion and invokes it.
func (f *fakeMessenger) completeOldest(result MessengerResult) {
	cb := f.pendingSends[0]
	f.pendingSends = f.pendingSends[1:]
	cb(result)
}

// transitionRecorder captures OnStateChanged invocations in order.
type transitionRecorder struct {
	transitions []transition
}

type transition struct {
	previous, new DeviceState
}

func (r *transitionRecorder) record(ctx any, previous, new DeviceState) {
	r.transitions = append(r.transitions, transition{previous: previous, new: new})
}
