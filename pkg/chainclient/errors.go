package chainclient

import "errors"

// ErrNoRoot is returned by TreeAccount.LatestRoot when the root history
// ring buffer is empty — a malformed or uninitialized tree account.
// Callers wrap this as foresterrors.NoRootError at the coordinator
// boundary.
var ErrNoRoot = errors.New("chainclient: tree account root history is empty")
