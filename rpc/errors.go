package rpc

import (
	"errors"
	"net/http"

	"ipledger/native/loan"
	"ipledger/native/royalty"
	"ipledger/native/token"
)

// writeEngineError maps engine failures onto the JSON-RPC error space.
// Authorization failures surface as codeUnauthorized; every other
// precondition or state failure surfaces as codeServerError.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	switch {
	case errors.Is(err, loan.ErrNotApprover),
		errors.Is(err, loan.ErrNotAdmin),
		errors.Is(err, loan.ErrNotBorrower),
		errors.Is(err, royalty.ErrNotAdmin),
		errors.Is(err, token.ErrNotAdmin):
		status = http.StatusForbidden
		code = codeUnauthorized
	}
	writeError(w, status, id, code, err.Error(), nil)
}
