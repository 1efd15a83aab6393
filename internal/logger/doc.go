// Package logger wraps zap for the whole daemon:
//   - a global sugared logger writing console lines to stdout,
//   - context helpers (ToContext/FromContext/WithName/WithKV) so every
//     dispatcher and command handler logs with its own scope,
//   - level parsing and runtime level changes,
//   - leveled helpers (InfoKV, Warnf, ErrorKV, ...).
package logger
