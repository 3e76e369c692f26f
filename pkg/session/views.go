package session

import (
	"time"

	"github.com/edgehub-go/devicesession/pkg/clock"
)

// AuthView caches the latest values reported by the authenticator's two
// event streams.
type AuthView struct {
	State         AuthState
	ErrorCode     AuthErrorCode
	LastChangedAt time.Time // zero value means UNDEFINED
	TimeoutSecs   uint32
}

// MessengerView caches the latest state reported by the messenger's
// state-change stream.
type MessengerView struct {
	State         MsgState
	LastChangedAt time.Time // zero value means UNDEFINED
	TimeoutSecs   uint32
}

// callbackRouter drains the authenticator's and messenger's event
// channels and stamps wall-clock timestamps onto the cached views. It is
// non-reentrant to the caller: it only updates instance fields, never
// invokes the aggregate state-change callback itself.
type callbackRouter struct {
	clock clock.Clock
}

// routeAuthState applies a new authenticator state to view, ignoring
// identical-state repeats. On clock-read failure the timestamp is left
// UNDEFINED (the zero time.Time) so the next timeout check fails closed.
func (r *callbackRouter) routeAuthState(view *AuthView, newState AuthState) {
	if view.State == newState {
		return
	}
	view.State = newState
	view.LastChangedAt = r.stamp()
}

// routeAuthErrorCode updates the cached error code without transitioning
// any state; the Controller reads it on the next pump tick.
func (r *callbackRouter) routeAuthErrorCode(view *AuthView, code AuthErrorCode) {
	view.ErrorCode = code
}

// routeMsgState applies a new messenger state to view, ignoring
// identical-state repeats.
func (r *callbackRouter) routeMsgState(view *MessengerView, newState MsgState) {
	if view.State == newState {
		return
	}
	view.State = newState
	view.LastChangedAt = r.stamp()
}

// stamp reads the current wall-clock time, returning the zero time.Time
// (UNDEFINED) on clock failure.
func (r *callbackRouter) stamp() time.Time {
	now, err := r.clock.Now()
	if err != nil {
		return time.Time{}
	}
	return now
}

// elapsedSince reports the duration since t and whether it could be
// computed. It fails (ok=false) both when t is UNDEFINED and when the
// current wall-clock read fails, matching the fail-closed rule for timeout
// evaluation (spec.md §5, §8).
func (r *callbackRouter) elapsedSince(t time.Time) (d time.Duration, ok bool) {
	if t.IsZero() {
		return 0, false
	}
	now, err := r.clock.Now()
	if err != nil {
		return 0, false
	}
	return now.Sub(t), true
}

// drainAuthChannels drains every pending event from an Authenticator's two
// streams without blocking, applying each through the router. Called only
// from inside Controller.DoWork.
func (r *callbackRouter) drainAuthChannels(auth Authenticator, view *AuthView) {
	for {
		select {
		case s := <-auth.StateChanges():
			r.routeAuthState(view, s)
		case c := <-auth.ErrorCodes():
			r.routeAuthErrorCode(view, c)
		default:
			return
		}
	}
}

// drainMsgChannel drains every pending state-change event from a
// Messenger's stream without blocking.
func (r *callbackRouter) drainMsgChannel(msgr Messenger, view *MessengerView) {
	for {
		select {
		case s := <-msgr.StateChanges():
			r.routeMsgState(view, s)
		default:
			return
		}
	}
}
