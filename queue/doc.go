// Package queue defines job queues and per-queue offer throttling.
//
// A [Queue] is an ordered holding area for jobs awaiting offers; ordering
// is (priority descending, enqueue time ascending) and lives in the store.
// The [Manager] applies optional token-bucket rate limits to offer
// issuance so a flood of submissions cannot stampede workers.
package queue
