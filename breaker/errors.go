package breaker

import "github.com/ceyewan/leaseflake/xerrors"

var (
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: config is nil")
	ErrKeyEmpty  = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: key is empty")
	// ErrOpenState 熔断打开，属于 xerrors.ErrUnavailable
	ErrOpenState = xerrors.Wrap(xerrors.ErrUnavailable, "breaker: circuit open")
)
