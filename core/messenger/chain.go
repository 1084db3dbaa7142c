package messenger

// applyMiddleware composes the registered middleware over the terminal
// handler. Registration order is outermost first. Every continuation is
// wrapped in a single-shot guard: a middleware that calls next more than
// once runs the remainder of the chain only on the first call, and a
// middleware that never calls next short-circuits everything after it.
// The composed chain is built per event, so guards never leak between
// passes.
func applyMiddleware(h HandlerFunc, middleware []MiddlewareFunc) HandlerFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](once(h))
	}
	return h
}

// once makes a continuation idempotent. Repeat calls are no-ops.
func once(next HandlerFunc) HandlerFunc {
	done := false
	return func(c Context) error {
		if done {
			return nil
		}
		done = true
		return next(c)
	}
}
