// Package storage defines the session and user stores used by the session
// and password plugins and the sentinel errors shared by the adapters.
//
// Adapters live in the memory and postgres subpackages.
package storage
