package delivery

// Identity is the caller context handed to the engine by the auth layer.
// It deliberately carries only what delivery needs; no session object
// crosses this boundary.
type Identity struct {
	AccountID int
	TierID    int
	LoggedIn  bool
}

// Anonymous is the identity used when no session or token binds the
// request to an account.
var Anonymous = Identity{}

// Policy is the effective transfer policy for one download: the speed and
// concurrency ceilings plus transfer-mode flags, after token overrides or
// tier defaults have been applied.
type Policy struct {
	// SpeedLimit is the target throughput in bytes per second. 0 means
	// unthrottled.
	SpeedLimit int64

	// MaxThreads caps concurrent transfers per requester address. 0 means
	// unlimited.
	MaxThreads int

	// Attachment controls Content-Disposition: attachment delivery.
	Attachment bool

	// ProcessHooks controls whether the post-completion extension point
	// runs for this transfer.
	ProcessHooks bool
}
