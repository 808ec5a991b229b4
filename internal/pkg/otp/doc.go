// Package otp generates short numeric one-time codes for out-of-band
// delivery.
package otp
