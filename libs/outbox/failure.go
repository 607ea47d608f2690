package outbox

// FailureAction decides what happens to a row whose publish failed.
type FailureAction int

const (
	// FailureRetry leaves the row pending; it is claimed again on a later cycle.
	FailureRetry FailureAction = iota
	// FailureDead moves the row to the dead-letter table immediately.
	FailureDead
)

// FailureClassifier inspects a publish error and decides whether it is
// worth retrying. Transient broker failures retry; anything classified
// dead skips the attempt budget entirely.
type FailureClassifier func(rec *Record, err error) FailureAction

func defaultClassifier(*Record, error) FailureAction {
	return FailureRetry
}
