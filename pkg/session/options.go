package session

import (
	"fmt"

	"github.com/edgehub-go/devicesession/pkg/optionbag"
)

// OptionBag is the recursive option container used by the Options Façade,
// the same sum type ({Leaf(name, value) | Container(children)}) spec.md §9
// calls for.
type OptionBag = optionbag.Bag

// Option name constants, exactly as spec.md §6 lists them.
const (
	OptionCBSRequestTimeoutSecs   = "cbs_request_timeout_secs"
	OptionSASTokenRefreshTimeSecs = "sas_token_refresh_time_secs"
	OptionSASTokenLifetimeSecs    = "sas_token_lifetime_secs"
	OptionEventSendTimeoutSecs    = "event_send_timeout_secs"

	OptionSavedDeviceAuthOptions      = "saved_device_auth_options"
	OptionSavedDeviceMessengerOptions = "saved_device_messenger_options"
	OptionSavedDeviceOptions          = "saved_device_options"
)

// setOption implements Controller.SetOption: forward authenticator- and
// messenger-scoped option names to the matching child, and feed saved
// option bags into their corresponding target.
func (c *Controller) setOption(name string, value any) error {
	switch name {
	case OptionCBSRequestTimeoutSecs, OptionSASTokenRefreshTimeSecs, OptionSASTokenLifetimeSecs:
		if c.cfg.AuthMode != AuthModeCBS || c.auth == nil {
			return fmt.Errorf("%w: %s", ErrOptionNotCBS, name)
		}
		return c.auth.SetOption(name, value)

	case OptionEventSendTimeoutSecs:
		return c.msgr.SetOption(name, value)

	case OptionSavedDeviceAuthOptions:
		if c.cfg.AuthMode != AuthModeCBS || c.auth == nil {
			return fmt.Errorf("%w: %s", ErrOptionNotCBS, name)
		}
		bag, err := asBag(value)
		if err != nil {
			return err
		}
		return feedAuthBag(c.auth, bag)

	case OptionSavedDeviceMessengerOptions:
		bag, err := asBag(value)
		if err != nil {
			return err
		}
		return feedMessengerBag(c.msgr, bag)

	case OptionSavedDeviceOptions:
		bag, err := asBag(value)
		if err != nil {
			return err
		}
		if child, ok := bag.Child(OptionSavedDeviceAuthOptions); ok && c.cfg.AuthMode == AuthModeCBS && c.auth != nil {
			if err := feedAuthBag(c.auth, child); err != nil {
				return err
			}
		}
		if child, ok := bag.Child(OptionSavedDeviceMessengerOptions); ok {
			if err := feedMessengerBag(c.msgr, child); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
}

// retrieveOptions implements Controller.RetrieveOptions: a composite bag
// recursively containing the authenticator's and messenger's own option
// bags under OptionSavedDeviceAuthOptions / OptionSavedDeviceMessengerOptions.
func (c *Controller) retrieveOptions() (*OptionBag, error) {
	root := optionbag.New()

	if c.cfg.AuthMode == AuthModeCBS && c.auth != nil {
		authBag, err := c.auth.RetrieveOptions()
		if err != nil {
			return nil, err
		}
		root.SetChild(OptionSavedDeviceAuthOptions, authBag)
	}

	msgrBag, err := c.msgr.RetrieveOptions()
	if err != nil {
		return nil, err
	}
	root.SetChild(OptionSavedDeviceMessengerOptions, msgrBag)

	return root, nil
}

func asBag(value any) (*OptionBag, error) {
	bag, ok := value.(*OptionBag)
	if !ok {
		return nil, fmt.Errorf("%w: expected *OptionBag, got %T", ErrInvalidConfig, value)
	}
	return bag, nil
}

func feedAuthBag(auth Authenticator, bag *OptionBag) error {
	for _, name := range []string{OptionCBSRequestTimeoutSecs, OptionSASTokenRefreshTimeSecs, OptionSASTokenLifetimeSecs} {
		if v, ok := bag.Leaf(name); ok {
			if err := auth.SetOption(name, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func feedMessengerBag(msgr Messenger, bag *OptionBag) error {
	if v, ok := bag.Leaf(OptionEventSendTimeoutSecs); ok {
		if err := msgr.SetOption(OptionEventSendTimeoutSecs, v); err != nil {
			return err
		}
	}
	return nil
}
