// Package persistence provides on-disk snapshots of a device session
// controller's captured option bags.
//
// spec.md treats configuration persistence as an external collaborator:
// "opaque option bags that can be captured and re-fed" by the caller. This
// package is that caller-side collaborator. It does not participate in the
// controller's own state machine; a caller retrieves an *optionbag.Bag via
// Controller.RetrieveOptions, saves it here, and on the next process start
// loads it back and feeds it to a freshly created Controller via
// Controller.SetOption(session.OptionSavedDeviceOptions, bag) — reproducing
// the round-trip law from spec.md §8.
package persistence
