// Package coordinator wires chat commands to the access gate, the
// subscriber store and per-recipient dispatchers, and re-arms stored
// subscribers when the daemon starts.
package coordinator
