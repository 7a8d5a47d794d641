package types

// Version is the project release version reported by the CLI binaries.
// The ingestion wire contract is versioned separately; see the wire
// package's contract version.
const Version = "0.3.0"
