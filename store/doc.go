// Package store defines where workflow checkpoints are kept.
//
// A Checkpoint records the state after a workflow stage completed so a failed run can be
// resumed from there. The only backend is the in-process store in store/memory; checkpoints
// do not survive a restart.
package store
