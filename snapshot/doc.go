// Package snapshot persists full engine states so startup only replays the
// journal tail written after the newest snapshot.
package snapshot
