// Package httpserver runs an http.Server for the lifetime of a context and
// provides a JSON readiness handler.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Signal handling is left to the caller (signal.NotifyContext), so the server
// can share one shutdown path with other components.
package httpserver
