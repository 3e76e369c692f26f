// Package messenger implements the telemetry messenger that the device
// session controller cranks alongside its CBS authenticator. It owns the
// AMQP D2C send link and C2D receive link for one device: submitting
// outbound event messages, tracking their completion, and dispatching
// inbound cloud-to-device messages to a caller-supplied handler with a
// broker disposition applied from whatever verdict that handler returns.
//
// Messenger satisfies the session.Messenger child contract: it reports
// its own state through a buffered channel that the controller's Callback
// Router drains, never reaching back into the controller directly. Its
// send and receive worker goroutines only ever talk to the broker and to
// internal channels; DoWork is the sole place those channels are drained.
package messenger
