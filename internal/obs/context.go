package obs

import "context"

// routePatternKey is the context key storing matched route pattern.
type routePatternKey struct{}

// checkoutIDKey is the context key storing the checkout id a request acts on.
type checkoutIDKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// WithCheckoutID stores the checkout id on the context for request logging.
func WithCheckoutID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, checkoutIDKey{}, id)
}

// CheckoutIDFromContext extracts the checkout id from context if present.
func CheckoutIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(checkoutIDKey{}).(string); ok {
		return v
	}
	return ""
}
