package authenticator

import (
	"context"
	"fmt"
	"time"

	"github.com/edgehub-go/devicesession/pkg/amqptransport"
	"github.com/edgehub-go/devicesession/pkg/clock"
	"github.com/edgehub-go/devicesession/pkg/log"
	"github.com/edgehub-go/devicesession/pkg/session"
)

// cbsPutter is the subset of *amqptransport.CBSLink this package depends
// on, narrowed to make the put-token exchange fakeable in tests without a
// live broker.
type cbsPutter interface {
	PutToken(ctx context.Context, audience, token string) (int, error)
	Close(ctx context.Context) error
}

// Config carries the per-device settings an Authenticator needs at
// construction. It does not change after New.
type Config struct {
	DeviceID       string
	HubHost        string
	Credentials    session.Credentials
	ConnectionID   string
	Logger         log.Logger
	Clock          clock.Clock
}

// Authenticator is the CBS authentication worker. It satisfies
// session.Authenticator.
type Authenticator struct {
	deviceID     string
	hubHost      string
	creds        session.Credentials
	connectionID string
	logger       log.Logger
	clock        clock.Clock

	link cbsPutter

	state         session.AuthState
	lastRequestAt time.Time

	requestTimeout time.Duration
	refreshSecs    uint32
	lifetimeSecs   uint32

	stateCh chan session.AuthState
	errCh   chan session.AuthErrorCode
}

// New constructs an Authenticator for the device described by cfg. It does
// not open any link; that happens on Start.
func New(cfg Config) *Authenticator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Authenticator{
		deviceID:       cfg.DeviceID,
		hubHost:        cfg.HubHost,
		creds:          cfg.Credentials,
		connectionID:   cfg.ConnectionID,
		logger:         logger,
		clock:          clk,
		state:          session.AuthStopped,
		requestTimeout: 30 * time.Second,
		refreshSecs:    3600,
		lifetimeSecs:   3600,
		stateCh:        make(chan session.AuthState, 8),
		errCh:          make(chan session.AuthErrorCode, 8),
	}
}

// Start takes the sender/receiver pair on "$cbs" that the caller opened via
// amqptransport.Session.OpenCBSLink (cbs is that pair) and begins the
// put-token exchange. Start itself never blocks on the network:
// it records the link, announces AuthStarting, and leaves the actual
// exchange to the next DoWork tick, matching the controller's pump model.
func (a *Authenticator) Start(cbs *amqptransport.CBSLink) error {
	if cbs == nil {
		return fmt.Errorf("authenticator: cbs link is required")
	}
	a.link = cbs
	a.setState(session.AuthStarting)
	return nil
}

// Stop closes the CBS link and announces AuthStopped.
func (a *Authenticator) Stop() error {
	if a.link != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.requestTimeout)
		defer cancel()
		_ = a.link.Close(ctx)
		a.link = nil
	}
	a.setState(session.AuthStopped)
	return nil
}

// DoWork advances the put-token exchange: while starting, it performs the
// (bounded) blocking put-token call; once started, it refreshes the token
// before it expires.
func (a *Authenticator) DoWork() {
	switch a.state {
	case session.AuthStarting:
		a.putToken()
	case session.AuthStarted:
		a.maybeRefresh()
	}
}

func (a *Authenticator) putToken() {
	now, err := a.clock.Now()
	if err != nil {
		a.fail(session.AuthErrorAuthTimeout, "clock unavailable during put-token")
		return
	}

	token, err := buildToken(a.hubHost, a.deviceID, a.creds, now, time.Duration(a.lifetimeSecs)*time.Second)
	if err != nil {
		a.fail(session.AuthErrorAuthFailed, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.requestTimeout)
	defer cancel()

	audience := resourceURI(a.hubHost, a.deviceID)
	status, err := a.link.PutToken(ctx, audience, token)
	if err != nil {
		a.fail(session.AuthErrorAuthTimeout, err.Error())
		return
	}
	if status < 200 || status >= 300 {
		a.fail(session.AuthErrorAuthFailed, fmt.Sprintf("put-token rejected: status %d", status))
		return
	}

	a.lastRequestAt = now
	a.setState(session.AuthStarted)
}

func (a *Authenticator) maybeRefresh() {
	now, err := a.clock.Now()
	if err != nil {
		return
	}
	if now.Sub(a.lastRequestAt) < time.Duration(a.refreshSecs)*time.Second {
		return
	}
	a.setState(session.AuthStarting)
	a.putToken()
}

func (a *Authenticator) fail(code session.AuthErrorCode, reason string) {
	a.logger.Log(log.Event{
		ConnectionID: a.connectionID,
		DeviceID:     a.deviceID,
		Layer:        log.LayerAuth,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Layer: log.LayerAuth, Message: reason},
	})
	a.setErrorCode(code)
	a.setState(session.AuthError)
}

func (a *Authenticator) setState(s session.AuthState) {
	a.state = s
	a.stateCh <- s
}

func (a *Authenticator) setErrorCode(c session.AuthErrorCode) {
	a.errCh <- c
}

// StateChanges implements session.Authenticator.
func (a *Authenticator) StateChanges() <-chan session.AuthState { return a.stateCh }

// ErrorCodes implements session.Authenticator.
func (a *Authenticator) ErrorCodes() <-chan session.AuthErrorCode { return a.errCh }

var _ session.Authenticator = (*Authenticator)(nil)
