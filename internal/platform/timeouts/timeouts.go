// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// CounterStore caps a single rate-limit counter round trip. The gate fails
// closed when the store cannot answer in time.
const CounterStore = 750 * time.Millisecond

// RedisDial caps the initial connection to a shared counter backend.
const RedisDial = 2 * time.Second

// HealthProbe bounds a readiness check against a running server.
const HealthProbe = 3 * time.Second

// Shutdown limits how long a server waits for in-flight requests and
// telemetry flushes during graceful shutdown.
const Shutdown = 5 * time.Second
