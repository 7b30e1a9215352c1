package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "firestore-access context key " + string(c)
}

const (
	// AccountIDKey carries the id of the account performing the call.
	AccountIDKey = contextKey("accountID")
	// AccountNameKey carries the display name of the calling account.
	AccountNameKey = contextKey("accountName")
	// DeviceTimestampKey carries the client supplied device time, if any.
	DeviceTimestampKey = contextKey("deviceTimestamp")
	// RequestIDKey correlates log lines of one request.
	RequestIDKey = contextKey("requestID")
	// ComponentKey names the component emitting a log line.
	ComponentKey = contextKey("component")
	// OperationKey names the access operation (create, getQuery, ...).
	OperationKey = contextKey("operation")
	// ClaimsKey holds the verified token claims.
	ClaimsKey = contextKey("claims")
)
