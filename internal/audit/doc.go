// Package audit implements the append-only audit log of dispatched verbs.
//
// Each JSONL entry records the verb, the unit identity, the outcome, the
// normalized error code and the latency. Credentials and command values are
// never written.
package audit
