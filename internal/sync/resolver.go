// Package sync keeps the local entity stores consistent with the remote
// backend: per-type modules pull, merge and push, and the orchestrator
// serializes, throttles and coalesces runs of all of them.
package sync

import "cookbooksync/internal/entity"

// Winner names the side a conflict was resolved in favor of
type Winner int

const (
	WinnerNone Winner = iota
	WinnerLocal
	WinnerRemote
)

func (w Winner) String() string {
	switch w {
	case WinnerLocal:
		return "local"
	case WinnerRemote:
		return "remote"
	default:
		return "none"
	}
}

// Resolve decides which version of one id is authoritative by last write
// wins on updatedAt. Equal timestamps go to the remote. merged is the zero
// value when the winner is WinnerNone.
func Resolve[T any](kind entity.Kind[T], local *entity.LocalEntity[T], remote *T) (Winner, T) {
	var zero T
	switch {
	case local == nil && remote == nil:
		return WinnerNone, zero
	case local == nil:
		return WinnerRemote, *remote
	case remote == nil:
		return WinnerLocal, local.Data
	}

	if kind.UpdatedAt(local.Data) > kind.UpdatedAt(*remote) {
		return WinnerLocal, local.Data
	}
	return WinnerRemote, *remote
}
