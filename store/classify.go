package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/retry"
)

// Message fragments that identify a transient failure when the driver did
// not give us a typed error. Matched case-insensitively.
var transientMessages = []string{
	"restart transaction",
	"connection reset by peer",
	"40001",
	"serialization failure",
	"read/write dependencies with inconsistent values",
	"transaction deadline exceeded",
	"transaction aborted",
	"not in a transaction",
	"transaction waiting for resume",
	"commit result is ambiguous",
	"transaction is too large to complete",
}

// Subset of transientMessages caused by conflicting transactions.
var contentionMessages = []string{
	"restart transaction",
	"40001",
	"serialization failure",
}

// Classify decides whether a store error is worth another attempt. Typed
// driver and network errors are inspected first, the message only when they
// say nothing.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.Fatal
	}
	if class, ok := classifyByType(err); ok {
		return class
	}
	return classifyByMessage(err.Error())
}

func classifyByType(err error) (retry.Class, bool) {
	// The caller gave up, nothing left to retry for.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Fatal, true
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) {
		return retry.Fatal, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPqError(pqErr)
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return retry.Retryable, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Retryable, true
	}
	return retry.Fatal, false
}

func classifyPqError(e *pq.Error) (retry.Class, bool) {
	switch e.Code {
	case "40001": // serialization_failure
		return retry.Contention, true
	case "40P01", // deadlock_detected
		"53300", // too_many_connections
		"57P01", // admin_shutdown
		"57P02", // crash_shutdown
		"57P03", // cannot_connect_now
		"57014": // query_canceled
		return retry.Retryable, true
	}

	switch e.Code.Class() {
	case "08": // connection_exception
		return retry.Retryable, true
	case "22", "23", "42": // data exception, integrity violation, syntax or access
		return retry.Fatal, true
	}
	// Unknown SQLSTATE, let the message decide. CockroachDB reports several
	// retryable conditions under generic codes.
	return retry.Fatal, false
}

func classifyByMessage(msg string) retry.Class {
	msg = strings.ToLower(msg)
	for _, fragment := range contentionMessages {
		if strings.Contains(msg, fragment) {
			return retry.Contention
		}
	}
	for _, fragment := range transientMessages {
		if strings.Contains(msg, fragment) {
			return retry.Retryable
		}
	}
	return retry.Fatal
}
