/*
Package metrics provides Prometheus metrics collection and exposition for
the SiteKeeper master.

Metrics are registered at package init and exposed via an HTTP handler for
scraping; see pkg/restapi for the /metrics route. The package also exports
a Timer helper for recording operation durations without repeating
time.Since bookkeeping at every call site.

# Usage

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DispatcherPhaseDuration, task.TaskType, "execute")

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
