package obslog

import "github.com/google/uuid"

// NewOperationID returns a fresh correlation tag for one REPL command
// invocation. timing.Wrap logs it on the command's completion or failure
// line; the façade, cursor and indexer log lines of that command do not
// carry it.
func NewOperationID() string {
	return uuid.NewString()
}
