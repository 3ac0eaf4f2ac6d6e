// Package devices is the device-token registry.
//
// A Token ties a worker to one app install's push address. Registration is
// idempotent and doubles as the device heartbeat. The registry owns the
// token lifecycle: per-device preferences with quiet hours, delivery
// statistics, automatic deactivation after repeated failures, and the
// periodic purge of stale records.
//
// The default policy keeps several active tokens per worker so a phone and
// a tablet both receive pushes. WithSingleActiveDevice switches to the
// strict policy where registering a device retires the worker's others.
package devices
