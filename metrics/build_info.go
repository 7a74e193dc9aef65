package metrics

import (
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterBuildInfo 注册值恒为 1 的 valuation_build_info，标签携带版本与 VCS 修订号。
// 重复调用无副作用。
func (m *Metrics) RegisterBuildInfo(service, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "valuation_build_info",
		Help: "Build information for the valuation service",
	}, []string{"service", "version", "revision", "go_version"})

	m.BuildInfo.WithLabelValues(orUnknown(service), orUnknown(version), revision(), runtime.Version()).Set(1)
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
