// Package session implements a unit of work on top of a store.IStore.
//
// A Session collects writes (Save) without touching the store. Commit applies them
// under per-key commit locks and then runs the callbacks registered with
// AfterCommitSuccess, in registration order. A failing commit runs the
// AfterCommitFailure callbacks instead, a rollback runs none.
//
// Committed data lives under "uow/" + key, next to a companion key
// ("uow/" + key + ":version") with the version written by the last commit. Saves with checkConcurrency fail the commit with
// ErrConcurrency if that version changed since the key was staged.
//
// The session also offers an item bag (Item), used by the document managers to
// keep per-unit-of-work state such as pending update functions.
//
// A session is finished after Commit or Rollback: further registrations, saves and
// commits return ErrCompleted.
package session
