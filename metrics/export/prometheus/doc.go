// Package prometheus renders panel metrics in the Prometheus text exposition
// format. Counters are goadmin_*_total; the directory load and account delete
// latencies are histograms in seconds.
//
// The exporter keeps no registry. Callers mount Handler wherever they serve
// /metrics.
package prometheus
