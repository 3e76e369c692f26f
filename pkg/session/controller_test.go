package session

import (
	"testing"
	"time"

	"github.com/edgehub-go/devicesession/pkg/amqptransport"
	"github.com/edgehub-go/devicesession/pkg/clock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func cbsConfig(rec *transitionRecorder) DeviceConfig {
	return DeviceConfig{
		DeviceID:       "device-1",
		IoTHubHostFQDN: "myhub.azure-devices.net",
		AuthMode:       AuthModeCBS,
		Credentials:    Credentials{SASToken: "SharedAccessSignature sr=..."},
		OnStateChanged: rec.record,
	}
}

func x509Config(rec *transitionRecorder) DeviceConfig {
	return DeviceConfig{
		DeviceID:       "device-1",
		IoTHubHostFQDN: "myhub.azure-devices.net",
		AuthMode:       AuthModeX509,
		OnStateChanged: rec.record,
	}
}

// TestHappyCBSStart is spec scenario 1: a full CBS start reaching STARTED
// fires exactly two caller callbacks.
func TestHappyCBSStart(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()

	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)
	ctrl.SetClock(clock.NewFake(epoch))

	require.NoError(t, ctrl.StartAsync(&amqptransport.Session{}, &amqptransport.CBSLink{}))
	require.Equal(t, DeviceStarting, ctrl.State())

	ctrl.DoWork() // auth.Start invoked
	require.True(t, auth.started)
	auth.pushState(AuthStarting)

	ctrl.DoWork() // drains Starting
	auth.pushState(AuthStarted)

	ctrl.DoWork() // drains Started, messenger gating issues msgr.Start
	require.True(t, msgr.started)
	msgr.pushState(MsgStarting)

	ctrl.DoWork() // drains Starting
	msgr.pushState(MsgStarted)

	ctrl.DoWork() // drains Started -> aggregate STARTED
	require.Equal(t, DeviceStarted, ctrl.State())

	require.Len(t, rec.transitions, 2)
	require.Equal(t, transition{DeviceStopped, DeviceStarting}, rec.transitions[0])
	require.Equal(t, transition{DeviceStarting, DeviceStarted}, rec.transitions[1])
}

// TestAuthTimeout is spec scenario 2.
func TestAuthTimeout(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()

	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)
	fc := clock.NewFake(epoch)
	ctrl.SetClock(fc)

	require.NoError(t, ctrl.StartAsync(&amqptransport.Session{}, &amqptransport.CBSLink{}))
	ctrl.DoWork()
	auth.pushState(AuthStarting)
	ctrl.DoWork() // view now Starting, LastChangedAt = epoch

	fc.Advance(61 * time.Second)
	ctrl.DoWork() // elapsed 61s >= 60s default timeout

	require.Equal(t, DeviceErrorAuthTimeout, ctrl.State())
	require.Len(t, rec.transitions, 2)
	require.Equal(t, transition{DeviceStarting, DeviceErrorAuthTimeout}, rec.transitions[1])
}

// TestX509FastPath is spec scenario 3.
func TestX509FastPath(t *testing.T) {
	rec := &transitionRecorder{}
	msgr := newFakeMessenger()

	ctrl, err := NewController(x509Config(rec), nil, msgr)
	require.NoError(t, err)
	ctrl.SetClock(clock.NewFake(epoch))

	require.NoError(t, ctrl.StartAsync(&amqptransport.Session{}, nil))
	ctrl.DoWork()
	require.True(t, msgr.started)
	msgr.pushState(MsgStarting)
	ctrl.DoWork()
	msgr.pushState(MsgStarted)
	ctrl.DoWork()

	require.Equal(t, DeviceStarted, ctrl.State())
}

func TestAuthErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		code AuthErrorCode
		want DeviceState
	}{
		{"auth failed classifies as ERROR_AUTH", AuthErrorAuthFailed, DeviceErrorAuth},
		{"auth timeout classifies as ERROR_AUTH_TIMEOUT", AuthErrorAuthTimeout, DeviceErrorAuthTimeout},
		{"NONE preserves the quirk: still ERROR_AUTH_TIMEOUT", AuthErrorNone, DeviceErrorAuthTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &transitionRecorder{}
			auth := newFakeAuthenticator()
			msgr := newFakeMessenger()
			ctrl, err := NewController(cbsConfig(rec), auth, msgr)
			require.NoError(t, err)
			ctrl.SetClock(clock.NewFake(epoch))

			require.NoError(t, ctrl.StartAsync(&amqptransport.Session{}, &amqptransport.CBSLink{}))
			ctrl.DoWork()
			auth.pushState(AuthError)
			auth.pushError(tc.code)
			ctrl.DoWork()

			require.Equal(t, tc.want, ctrl.State())
		})
	}
}

func TestStartAsyncRejectsNonStoppedState(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)

	require.NoError(t, ctrl.StartAsync(&amqptransport.Session{}, &amqptransport.CBSLink{}))
	err = ctrl.StartAsync(&amqptransport.Session{}, &amqptransport.CBSLink{})
	require.ErrorIs(t, err, ErrWrongState)
	require.Equal(t, DeviceStarting, ctrl.State())
}

func TestStartAsyncRequiresCBSHandleUnderCBS(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)

	err = ctrl.StartAsync(&amqptransport.Session{}, nil)
	require.ErrorIs(t, err, ErrMissingCBSHandle)
	require.Equal(t, DeviceStopped, ctrl.State())
}

func TestStopRejectsStoppedOrStopping(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)

	require.ErrorIs(t, ctrl.Stop(), ErrWrongState)

	ctrl.state = DeviceStopping
	require.ErrorIs(t, ctrl.Stop(), ErrWrongState)
	require.Equal(t, DeviceStopping, ctrl.State())
}

func TestClockFailureDuringAuthTimeoutFailsClosed(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)
	fc := clock.NewFake(epoch)
	ctrl.SetClock(fc)

	require.NoError(t, ctrl.StartAsync(&amqptransport.Session{}, &amqptransport.CBSLink{}))
	ctrl.DoWork()
	auth.pushState(AuthStarting)
	ctrl.DoWork()

	fc.Fail(true)
	ctrl.DoWork()

	require.Equal(t, DeviceErrorAuth, ctrl.State())
}
