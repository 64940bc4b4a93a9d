package record

// PartitionFunc derives the cache partition key for a record. Partitioning is
// what makes partial invalidation possible: a TTL expiry or a single-record
// rewrite touches one partition, not the whole collection.
type PartitionFunc func(Record) string

// ByDay partitions by the record's timestamp day (YYYY-MM-DD, UTC).
// Used for high-volume time-ordered collections (ledger entries).
func ByDay(r Record) string {
	return r.Timestamp.UTC().Format("2006-01-02")
}

// ByMonth partitions by the record's timestamp month (YYYY-MM, UTC).
// Used for medium-volume grouped collections (budgets).
func ByMonth(r Record) string {
	return r.Timestamp.UTC().Format("2006-01")
}

// Single returns a partitioner that maps every record to one constant key.
// Used for low-volume collections (goals, notifications) where partial
// expiry buys nothing.
func Single(key string) PartitionFunc {
	return func(Record) string { return key }
}
