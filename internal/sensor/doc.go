// Package sensor turns a raw edge-triggered GPIO input into debounced
// motion events.
//
// A Hub owns the physical pin: it polls edges in one goroutine and fans the
// sampled level out to every subscriber. A Watcher subscribes to a Hub,
// waits for a quiet baseline (settling) and then emits one motion.Event per
// debounced Quiet/Active transition on a channel.
package sensor
