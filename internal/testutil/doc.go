// Package testutil contains fakes shared by the relay package tests: an
// in-memory session transport that records every frame it is handed.
// Not intended for production usage.
package testutil
