// Package daemon assembles and runs the motion alert bot: settings, the
// access gate, the subscriber file, the shared GPIO sensor hub, the Telegram
// gateway, the coordinator and the optional gRPC status server.
package daemon
