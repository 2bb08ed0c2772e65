// Package middleware provides the HTTP middleware used by the admin API.
//
//   - recovery.go: panic recovery
//   - request_id.go: request ID propagation
//   - logging.go: structured request logging
//   - metrics.go: Prometheus request metrics
//
// Every middleware has the shape func(http.Handler) http.Handler so it can be
// passed to (*mux.Router).Use or chained by hand:
//
//	router := mux.NewRouter()
//	// ... register handlers ...
//	router.Use(
//		middleware.RequestID(),
//		middleware.PanicRecovery(logger),
//		middleware.Logging(logger, middleware.GetRequestID),
//		middleware.Metrics(registry),
//	)
package middleware
