// Package hwctx carries per-call hardware debugging switches in a context.
package hwctx

import "context"

type ctxKey int

const verboseKey ctxKey = iota

// IsVerbose reports whether raw bus traffic should be dumped.
func IsVerbose(ctx context.Context) bool {
	v, _ := ctx.Value(verboseKey).(bool)
	return v
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, verboseKey, value)
}
