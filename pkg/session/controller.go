package session

import (
	"fmt"
	"time"

	"github.com/edgehub-go/devicesession/pkg/amqptransport"
	"github.com/edgehub-go/devicesession/pkg/clock"
)

// Controller is the aggregate state machine that drives a single device
// session: it reconciles the authenticator and messenger child state
// machines into one observable state and one event stream.
//
// Controller is not internally thread-safe (spec.md §5): the caller must
// not invoke its operations from multiple threads concurrently, and must
// not re-enter the controller from within a callback it invoked.
type Controller struct {
	cfg   *DeviceConfig
	state DeviceState

	authView AuthView
	msgrView MessengerView
	router   callbackRouter

	auth Authenticator // nil under AuthModeX509
	msgr Messenger

	sessionHandle *amqptransport.Session
	cbsHandle     *amqptransport.CBSLink

	sends sendTaskRegistry
	c2d   *c2dSubscription

	destroyed bool
}

// NewController validates and deep-copies cfg and wires in the
// already-constructed authenticator (required under AuthModeCBS, ignored
// under AuthModeX509) and messenger collaborators. Concrete collaborators
// are constructed by the caller rather than by Controller itself: both
// pkg/authenticator and pkg/messenger depend on pkg/session for the shared
// vocabulary their interfaces are expressed in (Authenticator, Messenger,
// AuthState, MsgState, OptionBag, ...), so session cannot import them back
// without a cycle. The caller plays the role spec.md's "create" gives the
// controller of constructing its children.
func NewController(cfg DeviceConfig, auth Authenticator, msgr Messenger) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.AuthMode == AuthModeCBS && auth == nil {
		return nil, fmt.Errorf("%w: authenticator is required under CBS auth mode", ErrInvalidConfig)
	}
	if msgr == nil {
		return nil, fmt.Errorf("%w: messenger is required", ErrInvalidConfig)
	}

	owned := cfg.clone()
	owned.AuthTimeoutSecs = defaultTimeout(owned.AuthTimeoutSecs)
	owned.MsgrTimeoutSecs = defaultTimeout(owned.MsgrTimeoutSecs)

	c := &Controller{
		cfg:   owned,
		state: DeviceStopped,
		auth:  auth,
		msgr:  msgr,
		sends: newSendTaskRegistry(),
		router: callbackRouter{
			clock: clock.Real{},
		},
	}
	if cfg.AuthMode != AuthModeCBS {
		c.auth = nil
	}
	c.authView = AuthView{State: AuthStopped, TimeoutSecs: owned.AuthTimeoutSecs}
	c.msgrView = MessengerView{State: MsgStopped, TimeoutSecs: owned.MsgrTimeoutSecs}
	return c, nil
}

// SetClock overrides the wall-clock seam used for timeout evaluation. It
// exists for tests; production callers never need it.
func (c *Controller) SetClock(clk clock.Clock) {
	c.router.clock = clk
}

// State returns the current aggregate state.
func (c *Controller) State() DeviceState {
	return c.state
}

func (c *Controller) transition(newState DeviceState) {
	if c.state == newState {
		return
	}
	previous := c.state
	c.state = newState
	if c.cfg.OnStateChanged != nil {
		c.cfg.OnStateChanged(c.cfg.CallbackCtx, previous, newState)
	}
}

// StartAsync stores the AMQP handles borrowed from the caller and
// transitions to STARTING. It is non-blocking: the actual child start
// primitives are invoked from the next DoWork tick.
func (c *Controller) StartAsync(sess *amqptransport.Session, cbs *amqptransport.CBSLink) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.state != DeviceStopped {
		return ErrWrongState
	}
	if sess == nil {
		return ErrMissingSessionHandle
	}
	if c.cfg.AuthMode == AuthModeCBS && cbs == nil {
		return ErrMissingCBSHandle
	}

	c.sessionHandle = sess
	c.cbsHandle = cbs
	c.transition(DeviceStarting)
	return nil
}

// Stop tears the session down. It fails if the aggregate state is already
// STOPPED or STOPPING.
func (c *Controller) Stop() error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.state == DeviceStopped || c.state == DeviceStopping {
		return ErrWrongState
	}

	c.transition(DeviceStopping)

	if c.msgrView.State != MsgStopped && c.msgrView.State != MsgStopping {
		if err := c.msgr.Stop(); err != nil {
			c.transition(DeviceErrorMsg)
			return err
		}
	}
	if c.cfg.AuthMode == AuthModeCBS && c.authView.State != AuthStopped {
		if err := c.auth.Stop(); err != nil {
			c.transition(DeviceErrorAuth)
			return err
		}
	}

	// Both child Stop calls returned synchronously and succeeded: reflect
	// that in the cached views immediately rather than waiting for a
	// future DoWork tick to drain a STOPPED event that may never arrive
	// before the next StartAsync.
	c.authView.State = AuthStopped
	c.authView.LastChangedAt = time.Time{}
	c.msgrView.State = MsgStopped
	c.msgrView.LastChangedAt = time.Time{}

	c.transition(DeviceStopped)
	c.sessionHandle = nil
	c.cbsHandle = nil
	return nil
}

// Destroy releases the controller. If currently STARTING or STARTED, it
// first calls Stop, ignoring its result, then force-completes any
// outstanding sends with SendDeviceDestroyed. Destroy is idempotent.
func (c *Controller) Destroy() {
	if c.destroyed {
		return
	}
	if c.state == DeviceStarting || c.state == DeviceStarted {
		_ = c.Stop()
	}
	c.sends.destroyAll()
	c.destroyed = true
}

// DoWork is the pump: one tick of work advancing the aggregate state and
// cranking both children, per spec.md §4.1.
func (c *Controller) DoWork() {
	if c.destroyed {
		return
	}

	if c.cfg.AuthMode == AuthModeCBS && c.auth != nil {
		c.router.drainAuthChannels(c.auth, &c.authView)
	}
	c.router.drainMsgChannel(c.msgr, &c.msgrView)

	switch c.state {
	case DeviceStarting:
		c.tickStarting()
	case DeviceStarted:
		c.tickStarted()
	}

	if c.cfg.AuthMode == AuthModeCBS && c.auth != nil &&
		c.authView.State != AuthStopped && c.authView.State != AuthError {
		c.auth.DoWork()
	}
	if c.msgrView.State != MsgStopped && c.msgrView.State != MsgError {
		c.msgr.DoWork()
	}
}

func (c *Controller) tickStarting() {
	if c.cfg.AuthMode == AuthModeCBS {
		switch c.authView.State {
		case AuthStopped:
			if err := c.auth.Start(c.cbsHandle); err != nil {
				c.transition(DeviceErrorAuth)
			}
			return
		case AuthStarting:
			c.checkAuthTimeout()
			return
		case AuthError:
			c.classifyAuthError()
			return
		case AuthStarted:
			// fall through to messenger gating
		}
	}

	if c.cfg.AuthMode == AuthModeX509 || c.authView.State == AuthStarted {
		c.tickMessengerGating()
	}
}

func (c *Controller) tickMessengerGating() {
	switch c.msgrView.State {
	case MsgStopped:
		if err := c.msgr.Start(c.sessionHandle); err != nil {
			c.transition(DeviceErrorMsg)
		}
	case MsgStarting:
		c.checkMsgrTimeout()
	case MsgError:
		c.transition(DeviceErrorMsg)
	case MsgStarted:
		c.transition(DeviceStarted)
	}
}

// tickStarted sanity-checks that both child views remain started (spec.md
// §4.1 item 2, §7 item 1: "authenticator state regressed unexpectedly
// while the aggregate was STARTED"). Any regression away from STARTED is
// an immediate error; there is no timeout grace once already running. An
// authenticator reporting ERROR is classified the same way as during
// STARTING, preserving the AuthErrorNone→ERROR_AUTH_TIMEOUT quirk.
func (c *Controller) tickStarted() {
	if c.cfg.AuthMode == AuthModeCBS && c.authView.State != AuthStarted {
		if c.authView.State == AuthError {
			c.classifyAuthError()
		} else {
			c.transition(DeviceErrorAuth)
		}
		return
	}
	if c.msgrView.State != MsgStarted {
		c.transition(DeviceErrorMsg)
	}
}

// checkAuthTimeout evaluates elapsed time since the auth view last
// changed against auth_timeout_secs. A clock-read failure fails closed
// into ERROR_AUTH, per spec.md §5/§8.
func (c *Controller) checkAuthTimeout() {
	elapsed, ok := c.router.elapsedSince(c.authView.LastChangedAt)
	if !ok {
		c.transition(DeviceErrorAuth)
		return
	}
	if elapsed >= secondsToDuration(c.authView.TimeoutSecs) {
		c.transition(DeviceErrorAuthTimeout)
	}
}

// checkMsgrTimeout is the messenger analogue of checkAuthTimeout.
func (c *Controller) checkMsgrTimeout() {
	elapsed, ok := c.router.elapsedSince(c.msgrView.LastChangedAt)
	if !ok {
		c.transition(DeviceErrorMsg)
		return
	}
	if elapsed >= secondsToDuration(c.msgrView.TimeoutSecs) {
		c.transition(DeviceErrorMsg)
	}
}

// classifyAuthError applies the deliberately preserved classification
// quirk from spec.md §7/§9: AuthErrorNone still routes to
// ERROR_AUTH_TIMEOUT, not just AuthErrorAuthTimeout.
func (c *Controller) classifyAuthError() {
	if c.authView.ErrorCode == AuthErrorAuthFailed {
		c.transition(DeviceErrorAuth)
	} else {
		c.transition(DeviceErrorAuthTimeout)
	}
}

// SendEventAsync allocates a sendTask and hands the message to the
// messenger. Ownership of the task transfers to the messenger until its
// completion callback fires exactly once.
func (c *Controller) SendEventAsync(msg []byte, onComplete SendCompleteFunc, ctx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if msg == nil {
		return ErrNilArgument
	}

	task := &sendTask{msg: msg, onComplete: onComplete, ctx: ctx}
	id := c.sends.register(task)

	if err := c.msgr.SendAsync(msg, func(result MessengerResult) {
		c.sends.complete(id, result)
	}); err != nil {
		c.sends.complete(id, MessengerResultFailSending)
		return err
	}
	return nil
}

// GetSendStatus forwards to the messenger.
func (c *Controller) GetSendStatus() (SendStatus, error) {
	if c.destroyed {
		return SendStatusIdle, ErrDestroyed
	}
	return c.msgr.GetSendStatus()
}

// SubscribeMessage registers the caller's inbound-message handler and asks
// the messenger to subscribe with the internal C2D adapter.
func (c *Controller) SubscribeMessage(cb C2DMessageFunc, ctx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if cb == nil {
		return ErrNilArgument
	}

	sub := &c2dSubscription{callback: cb, ctx: ctx}
	if err := c.msgr.Subscribe(func(msg []byte, source string, messageID uint64) Verdict {
		return dispatchC2D(sub, msg, &messengerDisposition{source: source, messageID: messageID})
	}); err != nil {
		return err
	}
	c.c2d = sub
	return nil
}

// UnsubscribeMessage asks the messenger to unsubscribe. The recorded
// caller callback is left in place; no further deliveries can occur once
// the messenger has unsubscribed.
func (c *Controller) UnsubscribeMessage() error {
	if c.destroyed {
		return ErrDestroyed
	}
	return c.msgr.Unsubscribe()
}

// SendMessageDisposition translates verdict into the messenger vocabulary
// and dispatches it for the message identified by info.
func (c *Controller) SendMessageDisposition(info *DispositionInfo, verdict Verdict) error {
	if c.destroyed {
		return ErrDestroyed
	}
	copied, err := info.clone()
	if err != nil {
		return err
	}
	return c.msgr.SendMessageDisposition(copied.Source, copied.MessageID, verdictToMessenger(verdict))
}

// SetRetryPolicy always fails: retry policy is not supported at this
// layer (spec.md §4.1, §9).
func (c *Controller) SetRetryPolicy(...any) error {
	return ErrRetryNotSupported
}

// SetOption forwards name/value to the Options Façade.
func (c *Controller) SetOption(name string, value any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	return c.setOption(name, value)
}

// RetrieveOptions returns the composite option bag for this controller and
// its children.
func (c *Controller) RetrieveOptions() (*OptionBag, error) {
	if c.destroyed {
		return nil, ErrDestroyed
	}
	return c.retrieveOptions()
}

func secondsToDuration(secs uint32) time.Duration {
	return time.Duration(secs) * time.Second
}
