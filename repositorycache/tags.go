package repositorycache

import (
	"context"
	"strings"
)

type cacheTagsContextKey struct{}

type cacheKeyContextKey struct{}

// WithCacheTags attaches extra namespaces to invalidate when a write made
// with ctx succeeds.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(cacheTagsFromContext(ctx), tags...))
	if len(combined) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// WithCacheKey names the scope of the criteria passed with ctx. Reads with
// criteria are cached only under a scope, and two reads share an entry only
// when their scopes serialize equally. The caller guarantees that equal
// scopes mean equal criteria.
func WithCacheKey(ctx context.Context, parts ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(parts) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheKeyContextKey{}, append([]any(nil), parts...))
}

func cacheKeyFromContext(ctx context.Context) ([]any, bool) {
	if ctx == nil {
		return nil, false
	}
	parts, ok := ctx.Value(cacheKeyContextKey{}).([]any)
	return parts, ok
}

// dedupeStrings trims, drops empty values and keeps the first occurrence of
// each string.
func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
