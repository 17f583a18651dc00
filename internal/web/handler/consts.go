package handler

const (
	// APIPath is the prefix of every JSON endpoint.
	APIPath = "/api"

	// ActingUserHeader carries the local user id of the administrator acting.
	ActingUserHeader = "X-Acting-User"

	// ErrNilDepsFatalLogMsg is used if the router or a dependency is nil.
	ErrNilDepsFatalLogMsg = "router or dependencies are nil"
)
