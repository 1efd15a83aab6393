// Package dispatcher binds one sensor watcher to one chat recipient.
//
// A Dispatcher acknowledges the request, waits for the watcher to settle,
// announces that alarms are armed and then relays every motion onset to
// the recipient from its own goroutine, in event order.
package dispatcher
