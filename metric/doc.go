// Package metric provides Prometheus-based metrics collection and an HTTP
// server for FactFlow monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (service status, errors, NATS health) and custom
// component-specific metrics. It includes an HTTP server exposing metrics in
// Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: platform-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with health check (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordServiceStatus("engine", 2)
//	coreMetrics.RecordNATSStatus(true)
//
// Prometheus-formatted metrics are exposed at /metrics and a health check at
// /health.
//
// # Component Metrics
//
// Components register their own metrics through the registrar interface or by
// registering collectors directly on PrometheusRegistry(). Registration
// detects duplicates per (service, metric) pair and classifies prometheus
// registration conflicts via the errors package.
//
// Components treat a nil registry as "metrics disabled": constructors return
// a nil metrics struct and every recording site checks for nil first, so the
// hot path carries no overhead when metrics are off.
package metric
