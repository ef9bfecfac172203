package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a venue error into the categories the engine's
// submission policy cares about. Anything the venue reports that does not map
// onto one of these is KindOther.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
	KindInsufficientFunds
	KindTransientNetwork
)

// Error 定义了交易所API返回的错误信息结构
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange error: code=%s, msg=%s", e.Code, e.Message)
	}
	return fmt.Sprintf("exchange error: %s", e.Message)
}

// IsRateLimited reports whether the order should be retried unchanged after a
// backoff delay.
func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRateLimited
}

// IsInsufficientFunds reports whether the order placement should be abandoned
// without retry. Not fatal to the engine.
func IsInsufficientFunds(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInsufficientFunds
}

// IsTransientNetwork reports a connection-level failure: reconnect the feed,
// keep all state.
func IsTransientNetwork(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransientNetwork
}
