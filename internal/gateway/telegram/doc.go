// Package telegram is the chat transport of the daemon.
//
// Gateway long-polls the Telegram Bot API, turns command messages into
// motion.Command values handled in their own goroutines, and delivers
// outgoing text to chat ids.
package telegram
