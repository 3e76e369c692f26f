package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetOptionForwardsAuthTimeout(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)

	require.NoError(t, ctrl.SetOption(OptionCBSRequestTimeoutSecs, uint32(30)))
	require.Equal(t, uint32(30), auth.options[OptionCBSRequestTimeoutSecs])
}

func TestSetOptionRejectsAuthOptionUnderX509(t *testing.T) {
	rec := &transitionRecorder{}
	msgr := newFakeMessenger()
	ctrl, err := NewController(x509Config(rec), nil, msgr)
	require.NoError(t, err)

	err = ctrl.SetOption(OptionCBSRequestTimeoutSecs, uint32(30))
	require.ErrorIs(t, err, ErrOptionNotCBS)
}

func TestSetOptionRejectsUnknownName(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)

	err = ctrl.SetOption("not_a_real_option", 1)
	require.ErrorIs(t, err, ErrUnknownOption)
}

func TestSetOptionForwardsMessengerTimeout(t *testing.T) {
	rec := &transitionRecorder{}
	auth := newFakeAuthenticator()
	msgr := newFakeMessenger()
	ctrl, err := NewController(cbsConfig(rec), auth, msgr)
	require.NoError(t, err)

	require.NoError(t, ctrl.SetOption(OptionEventSendTimeoutSecs, uint32(45)))
	require.Equal(t, uint32(45), msgr.options[OptionEventSendTimeoutSecs])
}

// TestOptionsRoundTripLaw is spec.md §8's round-trip law: retrieve_options
// followed by a fresh create + set_option(saved_device_options, bag)
// reproduces the observable option state of the original controller.
func TestOptionsRoundTripLaw(t *testing.T) {
	rec1 := &transitionRecorder{}
	auth1 := newFakeAuthenticator()
	msgr1 := newFakeMessenger()
	ctrl1, err := NewController(cbsConfig(rec1), auth1, msgr1)
	require.NoError(t, err)

	require.NoError(t, ctrl1.SetOption(OptionCBSRequestTimeoutSecs, uint32(20)))
	require.NoError(t, ctrl1.SetOption(OptionEventSendTimeoutSecs, uint32(15)))

	saved, err := ctrl1.RetrieveOptions()
	require.NoError(t, err)

	rec2 := &transitionRecorder{}
	auth2 := newFakeAuthenticator()
	msgr2 := newFakeMessenger()
	ctrl2, err := NewController(cbsConfig(rec2), auth2, msgr2)
	require.NoError(t, err)

	require.NoError(t, ctrl2.SetOption(OptionSavedDeviceOptions, saved))

	require.Equal(t, auth1.options[OptionCBSRequestTimeoutSecs], auth2.options[OptionCBSRequestTimeoutSecs])
	require.Equal(t, msgr1.options[OptionEventSendTimeoutSecs], msgr2.options[OptionEventSendTimeoutSecs])
}
