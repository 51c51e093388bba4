// Package lstore implements a local, in-memory, single-node key-value store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB that stamps every
// operation with the time of its clock.
//
// The clock defaults to the wall clock. Tests inject a clock.Manual through
// WithClock to move lease deadlines without sleeping.
//
// Data is stored entirely in memory and is not persisted between process restarts.
package lstore
