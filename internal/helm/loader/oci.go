package loader

import (
	"context"
	"fmt"
	"strings"

	"helm.sh/helm/v3/pkg/registry"
)

// pullOCI downloads a chart archive from an oci:// reference, e.g.
// oci://ghcr.io/prometheus-community/charts/kube-prometheus-stack:65.1.0.
func pullOCI(ctx context.Context, ref string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pulling %q: %w", ref, err)
	}

	clientOpts := []registry.ClientOption{registry.ClientOptEnableCache(true)}
	if opts.PlainHTTP {
		clientOpts = append(clientOpts, registry.ClientOptPlainHTTP())
	}

	client, err := registry.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating OCI registry client: %w", err)
	}

	if opts.Username != "" && opts.Password != "" {
		host := registryHost(ref)

		loginOpts := []registry.LoginOption{registry.LoginOptBasicAuth(opts.Username, opts.Password)}
		if opts.PlainHTTP {
			loginOpts = append(loginOpts, registry.LoginOptInsecure(true))
		}

		if err := client.Login(host, loginOpts...); err != nil {
			return nil, fmt.Errorf("authenticating to OCI registry %q: %w", host, err)
		}
	}

	result, err := client.Pull(strings.TrimPrefix(ref, "oci://"), registry.PullOptWithChart(true))
	if err != nil {
		return nil, fmt.Errorf("pulling chart from %q: %w", ref, err)
	}

	if result.Chart == nil || result.Chart.Data == nil {
		return nil, fmt.Errorf("no chart data in OCI pull result for %q", ref)
	}

	return result.Chart.Data, nil
}

// registryHost returns the host part of an oci:// reference.
func registryHost(ref string) string {
	trimmed := strings.TrimPrefix(ref, "oci://")

	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx]
	}

	return trimmed
}
