package policy

import "github.com/twmb/cql-go/pkg/cqlerr"

// Decision is what a Retry Policy tells Request Execution to do after a
// recoverable server error, per spec.md §4.5.
type Decision int

const (
	DecisionRethrow Decision = iota
	DecisionIgnore
	DecisionRetrySameHost
	DecisionRetryNextHost
)

// RetryPolicy decides, for each category of recoverable error, whether to
// retry (and where) or surface the error to the caller.
type RetryPolicy interface {
	OnReadTimeout(err *cqlerr.ServerError, retryNumber int) Decision
	OnWriteTimeout(err *cqlerr.ServerError, retryNumber int) Decision
	OnUnavailable(err *cqlerr.ServerError, retryNumber int) Decision
	OnRequestError(err error, retryNumber int) Decision
}

// DefaultRetryPolicy implements the conservative defaults spec.md §4.5
// lays out: retry a read timeout once on the same host if enough replicas
// responded but no data was returned, retry unavailable once on the next
// host, only retry a write timeout for a batch log write (never an
// unresolved data write, which might already have been applied), and retry
// a transport-level request error once on the next host. None of these
// decisions looks at whether the request is idempotent.
type DefaultRetryPolicy struct{}

func (DefaultRetryPolicy) OnReadTimeout(err *cqlerr.ServerError, retryNumber int) Decision {
	if retryNumber > 0 {
		return DecisionRethrow
	}
	if err.DataPresent {
		return DecisionRethrow
	}
	if err.Received >= err.BlockFor {
		return DecisionRetrySameHost
	}
	return DecisionRethrow
}

func (DefaultRetryPolicy) OnWriteTimeout(err *cqlerr.ServerError, retryNumber int) Decision {
	if retryNumber > 0 {
		return DecisionRethrow
	}
	if err.WriteType == cqlerr.WriteTypeBatchLog {
		return DecisionRetrySameHost
	}
	return DecisionRethrow
}

func (DefaultRetryPolicy) OnUnavailable(err *cqlerr.ServerError, retryNumber int) Decision {
	if retryNumber > 0 {
		return DecisionRethrow
	}
	return DecisionRetryNextHost
}

func (DefaultRetryPolicy) OnRequestError(err error, retryNumber int) Decision {
	if retryNumber > 0 {
		return DecisionRethrow
	}
	return DecisionRetryNextHost
}

// FallthroughRetryPolicy never retries; every recoverable error is rethrown
// to the caller immediately. Useful for clients that implement their own
// retry loop above this driver.
type FallthroughRetryPolicy struct{}

func (FallthroughRetryPolicy) OnReadTimeout(*cqlerr.ServerError, int) Decision  { return DecisionRethrow }
func (FallthroughRetryPolicy) OnWriteTimeout(*cqlerr.ServerError, int) Decision { return DecisionRethrow }
func (FallthroughRetryPolicy) OnUnavailable(*cqlerr.ServerError, int) Decision  { return DecisionRethrow }
func (FallthroughRetryPolicy) OnRequestError(error, int) Decision              { return DecisionRethrow }
