// Package httpclient holds the request/response probe.
//
// [NewClient] builds an *http.Client with a connection pool sized for many
// virtual users. [EchoProbe] POSTs a JSON message and verifies the reply:
//
//	probe := httpclient.NewEchoProbe(httpclient.EchoConfig{URL: target})
//	res, err := probe.Do(ctx, "Hello from pulsebench!")
//
// A non-200 status is a [session.HandshakeError]; a 200 whose "message"
// field differs from the one sent is an [EchoMismatchError].
package httpclient
