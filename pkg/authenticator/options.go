package authenticator

import (
	"fmt"
	"time"

	"github.com/edgehub-go/devicesession/pkg/optionbag"
	"github.com/edgehub-go/devicesession/pkg/session"
)

// SetOption handles the three authenticator-scoped option names from
// spec.md §4.6: cbs_request_timeout_secs, sas_token_refresh_time_secs,
// sas_token_lifetime_secs.
func (a *Authenticator) SetOption(name string, value any) error {
	secs, ok := asUint32(value)
	if !ok {
		return fmt.Errorf("authenticator: %s expects a uint32 value, got %T", name, value)
	}
	switch name {
	case session.OptionCBSRequestTimeoutSecs:
		a.requestTimeout = time.Duration(secs) * time.Second
	case session.OptionSASTokenRefreshTimeSecs:
		a.refreshSecs = secs
	case session.OptionSASTokenLifetimeSecs:
		a.lifetimeSecs = secs
	default:
		return fmt.Errorf("authenticator: unknown option %s", name)
	}
	return nil
}

// RetrieveOptions returns a bag containing the current values of the
// three authenticator-scoped options.
func (a *Authenticator) RetrieveOptions() (*optionbag.Bag, error) {
	bag := optionbag.New()
	bag.SetLeaf(session.OptionCBSRequestTimeoutSecs, uint32(a.requestTimeout/time.Second))
	bag.SetLeaf(session.OptionSASTokenRefreshTimeSecs, a.refreshSecs)
	bag.SetLeaf(session.OptionSASTokenLifetimeSecs, a.lifetimeSecs)
	return bag, nil
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
