// Package spanhttp carries hellotrace span contexts over HTTP.
//
// Server side, Middleware extracts the incoming span context from request
// headers and runs the handler inside an active server span. Client side,
// Client starts a client span under the caller's active span and injects it
// into the outgoing request. HTTPSender ships span batches to a collector
// endpoint for a hellotrace.RemoteReporter.
//
// Example Usage:
//
//	router := gin.New()
//	router.Use(spanhttp.Middleware(tracer, spanhttp.WithLogger(logger)))
//
//	client := spanhttp.NewClient(tracer, spanhttp.DefaultClientConfig())
//	body, err := client.Get(ctx, "formatString", "http://localhost:8081/format",
//	    map[string]string{"helloTo": "world"})
package spanhttp
