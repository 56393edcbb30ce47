package promise

// pipe registers a completion callback on src that forwards its outcome
// into dst verbatim: a fulfilled src fulfills dst with the same value, a
// rejected src rejects dst with the same error, and a cancelled src
// cancels dst. It underlies Resolver.ResolveWith and every combinator that
// needs to adopt another promise's result unchanged (flatMap's inner
// promise, for instance).
func pipe[V, E any](src Promise[V, E], dst *Resolver[V, E]) {
	node := &callbackNode[V, E]{fn: func(o Outcome[V, E]) {
		dst.box.resolveOutcome(o)
	}}
	if src.box.attachCallback(node) {
		dst.box.resolveOutcome(src.box.terminalOutcome())
	}
}
