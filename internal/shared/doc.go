// Package shared holds code used across credguard packages that belongs to no
// single domain.
//
// The testutil subpackage provides a capturing slog handler with assertion
// helpers, and credential fixtures that mint signed test credentials.
//
//	logger, logs := testutil.NewTestLogger(t)
//	token := testutil.MintCredential(t, "user-1", "pro", time.Hour)
package shared
