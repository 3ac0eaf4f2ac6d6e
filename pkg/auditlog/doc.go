// Package auditlog records the delivery audit trail.
//
// Every delivery attempt, device lifecycle change, and monitor action leaves
// one Record. Writes go through Logger, which never returns an error to the
// caller: audit is an observability side channel and must not break the
// operation it observes. Reads go through Reader, which also derives
// aggregate views such as the delivery success rate.
//
// Two storage backends are provided: MemoryStorage for tests and
// MongoStorage for production.
package auditlog
