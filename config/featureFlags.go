package config

import (
	"os"
	"strings"
)

// StrictOrderImmutability enables the stricter closure policy:
// finalized/cancelled production orders cannot receive stage entries at all,
// not even compensating corrections; corrections must go through a new order.
//
// Set via env:
// - STRICT_ORDER_IMMUTABLE=true
func StrictOrderImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_ORDER_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// OutboxDispatcherEnabled gates the in-process outbox dispatcher loop.
// Disable when a dedicated dispatcher deployment owns the outbox.
//
// Set via env:
// - OUTBOX_DISPATCHER=off
func OutboxDispatcherEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DISPATCHER")))
	return v != "off" && v != "0" && v != "false"
}
