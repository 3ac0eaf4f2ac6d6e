// Package monitor supervises the delivery subsystem.
//
// Five independent loops run under one Run call: a load check samples the
// active-worker census, fresh pending set, and retry queue depth, a
// performance loop aggregates the trailing hour's delivery success rate and
// latency, a health loop probes dependencies, an uptime loop accounts
// availability hours during business hours, and an optimize loop runs the
// self-healing sweep. Alerts and metrics land in the audit trail as
// performance.alert and performance.metric records.
//
// The monitor also implements delivery.Observer, tracking in-flight
// deliveries so that slow or stuck ones are visible.
package monitor
