// Package rxmetrics instruments reactive pipelines.
//
// Both taps count every signal by kind and track live subscriptions and how
// long they ran, labelled by pipeline name and outcome:
//
//	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
//	people := repo.All(ctx).Tap(rxmetrics.NewTap(reg, "participants"))
//
//	tap, err := rxmetrics.NewOTelTap(otel.Meter("goflux"), "participants")
package rxmetrics
