// Package devcode holds the debug-only sink for plaintext one-time codes.
//
// Builds with the otpdebug tag keep the latest code per address in memory and
// log it, so operators can finish a step-up when email delivery is down.
// Release builds compile a sink that drops everything, and Enabled is false
// so the debug route is never registered.
package devcode
