// Package motion contains the core domain types of the motion notifier.
//
// It defines who is notified (Recipient), who asks (Identity), what the
// sensor reports (SensorState, Event), the inbound Command shape, the error
// taxonomy shared by every layer, and the user-facing message texts.
package motion
