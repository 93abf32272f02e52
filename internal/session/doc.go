// Package session implements the recording session state machine.
//
// A Session moves Idle → Acquiring → Recording → Stopping → Stopped, or to
// Failed from any pre-stop state. The state doubles as the serialization
// token: Start only proceeds from Idle and Stop only from Recording, so a
// Stop racing a pending device acquisition is rejected. Capture devices
// push chunks through a capture.Sink bound to the session; chunks are kept
// in delivery order and the device handle is released exactly once.
package session
