package testutil

import "go.uber.org/goleak"

// GoleakOptions ignores goroutines the standard library keeps alive past a
// test body.
var GoleakOptions = []goleak.Option{
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
}
