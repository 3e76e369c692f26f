// Package amqptransport wraps github.com/Azure/go-amqp with the thin
// session/link plumbing that the device session controller's collaborators
// need: a single AMQP connection and session per device, plus a sender and
// receiver pair bound to the "$cbs" management node for CBS authentication.
//
// It owns none of the session, authentication, or messaging state machines.
// Session and CBSLink are deliberately dumb: they exist so that
// pkg/authenticator and pkg/messenger have a concrete type to open links on
// instead of reaching into github.com/Azure/go-amqp directly, mirroring how
// the controller treats them as opaque handles.
package amqptransport
