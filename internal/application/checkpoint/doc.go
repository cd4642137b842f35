// Package checkpoint persists compressed snapshots of orchestration state so
// a run can resume after a crash. Checkpoints are content-addressed files in
// a single directory next to a JSON index; an in-memory LRU cache serves hot
// restores and a retention policy caps checkpoint count and age per project.
package checkpoint
