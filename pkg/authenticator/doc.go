// Package authenticator implements the CBS (Claims-Based Security)
// authentication worker that the device session controller cranks
// alongside its telemetry messenger. It owns the SAS token lifecycle for
// one device: the initial put-token exchange on the "$cbs" management
// node and periodic token refresh before expiry.
//
// Authenticator satisfies the session.Authenticator child contract: it
// reports its own state and error code through two buffered channels that
// the controller's Callback Router drains, never reaching back into the
// controller directly.
package authenticator
