package nodestore

import "time"

// NodeKey is the cache identity triple: two keys are equal iff all three
// fields match byte-for-byte. ContentDigest is the freshness anchor — a
// change to a file's bytes produces a different digest and therefore a
// different key.
type NodeKey struct {
	SymbolName    string
	FilePath      string
	ContentDigest string
}

// CallInfo describes one call-site in a call hierarchy result.
type CallInfo struct {
	Name   string
	File   string
	Line   int
	Column int
	Kind   string
}

// CallHierarchyInfo is the payload persisted for a NodeKey.
type CallHierarchyInfo struct {
	Incoming []CallInfo
	Outgoing []CallInfo
}

// PersistedNode is one stored call-hierarchy record.
type PersistedNode struct {
	Key       NodeKey
	Payload   CallHierarchyInfo
	CreatedAt time.Time
	Language  string
}

// CacheMetadata tracks aggregate store state. Version gates migrations;
// TotalNodes is allowed to drift from the real bucket count between
// flushes and is reconciled at open.
type CacheMetadata struct {
	TotalNodes    int64
	TotalSizeByte int64
	LastCleanup   time.Time
	Version       int
}

// Stats is the externally reported snapshot returned by Store.Stats().
type Stats struct {
	TotalNodes  int
	TotalFiles  int
	LastCleanup time.Time
	Version     int
}
