package ratelimit

import "github.com/ceyewan/leaseflake/xerrors"

var (
	ErrKeyEmpty     = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")
	ErrInvalidLimit = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: rate and burst must be positive")
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: redis connector is required")
	// ErrLimited 请求被限流
	ErrLimited = xerrors.Wrap(xerrors.ErrUnavailable, "ratelimit: rate limit exceeded")
)
