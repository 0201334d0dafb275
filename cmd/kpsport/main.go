// kpsport ports kube-prometheus-stack dashboards and rules to a plain
// Prometheus and Grafana.
package main

import (
	"os"

	"github.com/hupe1980/kpsport/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
