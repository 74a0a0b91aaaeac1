package ledger

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned when the ledger has no object under the id.
var ErrObjectNotFound = errors.New("ledger object not found")

// ErrExecutionFailed is returned when the ledger processed a transaction but
// reported a status other than StatusSuccess.
var ErrExecutionFailed = errors.New("transaction execution failed")

// CodeObjectNotFound is the JSON-RPC error code nodes use for missing objects.
const CodeObjectNotFound = -32004

// RPCError is a structured rejection from the ledger node. Receiving one means
// the node processed the request and refused it; for submissions that implies
// the transaction had no effect.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

// IsRejection reports whether err carries a definitive ledger rejection as
// opposed to a transport failure whose outcome is unknown.
func IsRejection(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}
