// Package errors provides coded, user-facing errors for reactor.
//
// Every error that reaches a user through the CLI or the inspector carries a
// registered code:
//
//	R001  write to read-only computed
//	R002  flush budget exceeded
//	R003  invalid configuration
//	R004  invalid scenario
//	R005  expectation failed
//	R006  unknown state path
//	R007  inspector server failed
//
// Errors found in a file carry a Location and a short excerpt:
//
//	err := errors.New("R005").
//	    WithLocation("counter.yaml", 14, 0).
//	    WithField("path", "doubled").
//	    WithField("want", 4).
//	    WithField("got", 2)
//
//	fmt.Print(err.Format())
//
// Registered codes double as sentinels for errors.Is, since two
// ReactorErrors with the same code match.
package errors
