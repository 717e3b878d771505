package detection

import (
	"fmt"
	"sort"
)

var builtins = map[AlertType]profile{
	AlertCPCJump: {
		metric:       "cpc",
		volumeMetric: "clicks",
		rule:         ratioRise("CPC", defaultCPCJumpFactor),
		suggested:    []string{"Review bid strategy and recent bid changes", "Check auction insights for new competitors", "Reduce bids on low-converting keywords"},
	},
	AlertCTRDrop: {
		metric:       "ctr",
		volumeMetric: "impressions",
		rule:         ratioDrop("CTR", defaultCTRDropFactor),
		suggested:    []string{"Refresh ad copy and assets", "Review search term relevance", "Add negative keywords for irrelevant queries"},
	},
	AlertSpendSpike: {
		metric:       "cost",
		volumeMetric: "clicks",
		rule:         ratioRise("Spend", defaultSpendSpikeFactor),
		suggested:    []string{"Check daily budget settings", "Review broad match expansion", "Pause runaway keywords"},
	},
	AlertConversionDrop: {
		metric:       "conversion_rate",
		volumeMetric: "clicks",
		rule:         ratioDrop("Conversion rate", defaultConversionDropFactor),
		suggested:    []string{"Verify conversion tracking", "Check landing page availability", "Review recent site changes"},
	},
	AlertQualityScore: {
		metric:       "quality_score",
		volumeMetric: "impressions",
		rule:         qualityRule,
		suggested:    []string{"Improve ad relevance to keywords", "Improve landing page experience", "Split ad groups by theme"},
	},
}

// NewDetector builds the detector for cfg.Type. The zscore type needs cfg.Metric;
// the other types may override their default metric with it.
func NewDetector(cfg AlertConfig, deps Deps) (Detector, error) {
	if cfg.Type == AlertZScore {
		if cfg.Metric == "" {
			return nil, fmt.Errorf("detector %s: metric is required", cfg.Type)
		}
		return &statDetector{cfg: cfg, deps: deps, profile: profile{
			metric:       cfg.Metric,
			volumeMetric: cfg.VolumeMetric,
			rule:         zscoreRule(cfg.Metric),
			suggested:    []string{fmt.Sprintf("Investigate the %s shift against recent account changes", cfg.Metric)},
		}}, nil
	}
	s, ok := builtins[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
	if cfg.Metric != "" {
		s.metric = cfg.Metric
	}
	if cfg.VolumeMetric != "" {
		s.volumeMetric = cfg.VolumeMetric
	}
	return &statDetector{cfg: cfg, profile: s, deps: deps}, nil
}

func KnownType(t AlertType) bool {
	_, ok := builtins[t]
	return ok || t == AlertZScore
}

// Registry maps alert types to enabled detector instances.
type Registry struct {
	detectors map[AlertType]Detector
}

func NewRegistry(cfgs []AlertConfig, deps Deps) (*Registry, error) {
	r := &Registry{detectors: make(map[AlertType]Detector)}
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		if _, dup := r.detectors[cfg.Type]; dup {
			return nil, fmt.Errorf("duplicate detector %q", cfg.Type)
		}
		d, err := NewDetector(cfg, deps)
		if err != nil {
			return nil, err
		}
		r.Register(d)
	}
	return r, nil
}

func (r *Registry) Register(d Detector) {
	r.detectors[d.Type()] = d
}

func (r *Registry) Get(t AlertType) (Detector, bool) {
	d, ok := r.detectors[t]
	return d, ok
}

// Detectors returns the registered detectors ordered by type.
func (r *Registry) Detectors() []Detector {
	out := make([]Detector, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}
