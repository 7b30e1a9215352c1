package utils

import (
	"context"
	"errors"
	"time"

	"firestore-access/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrAccountIDNotFound = errors.New("accountID not found in context")
	ErrRequestIDNotFound = errors.New("requestID not found in context")
)

// WithAccount stores the calling account on the context.
func WithAccount(ctx context.Context, accountID, accountName string) context.Context {
	ctx = context.WithValue(ctx, contextkeys.AccountIDKey, accountID)
	return context.WithValue(ctx, contextkeys.AccountNameKey, accountName)
}

// WithDeviceTimestamp stores the client supplied device time.
func WithDeviceTimestamp(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, contextkeys.DeviceTimestampKey, ts)
}

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}

// WithOperation stores the name of the running access operation.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, operation)
}

// GetAccountFromContext returns the account id and name stored by WithAccount.
func GetAccountFromContext(ctx context.Context) (accountID, accountName string, err error) {
	accountID = stringValue(ctx, contextkeys.AccountIDKey)
	if accountID == "" {
		return "", "", ErrAccountIDNotFound
	}
	return accountID, stringValue(ctx, contextkeys.AccountNameKey), nil
}

// GetDeviceTimestampFromContext returns the device time if one was stored.
func GetDeviceTimestampFromContext(ctx context.Context) (time.Time, bool) {
	ts, ok := ctx.Value(contextkeys.DeviceTimestampKey).(time.Time)
	return ts, ok
}

// GetRequestIDFromContext retrieves the request ID from the context.
func GetRequestIDFromContext(ctx context.Context) (string, error) {
	if id := stringValue(ctx, contextkeys.RequestIDKey); id != "" {
		return id, nil
	}
	return "", ErrRequestIDNotFound
}

func stringValue(ctx context.Context, key interface{}) string {
	s, _ := ctx.Value(key).(string)
	return s
}
