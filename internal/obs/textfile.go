package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile dumps the default registry in text exposition format, for the
// node_exporter textfile collector. The CLI exits before a scrape could happen.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
