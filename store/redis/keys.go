package redis

// Redis key naming conventions for router data.
// All keys are prefixed with "router:" to avoid collisions.

const keyPrefix = "router:"

// ── Job keys ──

// jobKey returns the key for a job entity: router:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key holding a queue's queued jobs:
// router:queue:{id}
func queueKey(id string) string { return keyPrefix + "queue:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Worker keys ──

// workerKey returns the key for a worker's registration hash:
// router:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerOffersKey returns the Hash key holding a worker's outstanding
// offers: router:worker:{id}:offers
func workerOffersKey(id string) string { return keyPrefix + "worker:" + id + ":offers" }

// workerAssignmentsKey returns the Hash key holding a worker's active
// assignments: router:worker:{id}:assignments
func workerAssignmentsKey(id string) string { return keyPrefix + "worker:" + id + ":assignments" }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"

// ── Offer index keys ──

// offerExpiryKey is the Sorted Set of outstanding offers scored by their
// expiration time in Unix milliseconds. Members are "workerID|offerID".
const offerExpiryKey = keyPrefix + "offer_expiry"

// jobOffersKey returns the Set of "workerID|offerID" members for a job:
// router:job_offers:{id}
func jobOffersKey(id string) string { return keyPrefix + "job_offers:" + id }

// ── Queue and policy keys ──

// queueEntityKey returns the key for a queue entity: router:queue_meta:{id}
func queueEntityKey(id string) string { return keyPrefix + "queue_meta:" + id }

// queueIDsKey is the Set tracking all queue IDs for enumeration.
const queueIDsKey = keyPrefix + "queue_ids"

// policyKey returns the key for a distribution policy entity:
// router:policy:{id}
func policyKey(id string) string { return keyPrefix + "policy:" + id }

// policyIDsKey is the Set tracking all policy IDs for enumeration.
const policyIDsKey = keyPrefix + "policy_ids"
