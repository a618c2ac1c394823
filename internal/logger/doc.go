// Package logger wraps zap with the helpers pyfreeze uses everywhere:
//   - a global sugared logger writing console lines to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing so the CLI can honour --log-level,
//   - leveled shortcuts (Infof, WarnKV, ErrorKV and so on).
//
// Services receive a context and pull the logger out of it, so every line
// carries the component name and any build-scoped fields.
package logger
