/*
Package metrics records what each mount and unmount pass did as Prometheus
metrics.

wsmount is a short-lived command rather than a daemon, so nothing is served
over HTTP. After every command the registry is written to a file in the
text exposition format, for node_exporter's textfile collector to pick up:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:  true,
		Textfile: "/var/lib/node_exporter/textfile/wsmount.prom",
	})
	...
	collector.RecordMount("gcs", metrics.OutcomeMounted, time.Since(start))
	collector.SetMounted(12)
	if err := collector.WriteTextfile(); err != nil { ... }

# Metrics

	wsmount_mount_attempts_total{cloud, outcome}   counter
	wsmount_mount_duration_seconds{cloud}          histogram
	wsmount_unmounts_total{outcome}                counter
	wsmount_unmount_duration_seconds               histogram
	wsmount_mounted_resources                      gauge
	wsmount_pruned_directories_total               counter
	wsmount_errors_total{operation, code}          counter

outcome is one of mounted, no_access, not_found, mount_failed or error for
mounts and unmounted or busy for unmounts. A path that was not mounted
counts as unmounted. code is the
structured error code, or "other" for errors that do not carry one.

A disabled Collector accepts every call and records nothing.
*/
package metrics
