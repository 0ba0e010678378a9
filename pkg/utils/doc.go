// Package utils provides small helpers shared by the kgroute packages:
// panic recovery for fan-out goroutines, retry with exponential backoff,
// batching, vector similarity and run identifiers.
package utils
