package detection

import (
	"time"

	"adwatch-backend/internal/noise"
)

type EntityType string

const (
	EntityCampaign EntityType = "campaign"
	EntityAdGroup  EntityType = "ad_group"
	EntityKeyword  EntityType = "keyword"
	EntityURL      EntityType = "url"
	EntityCluster  EntityType = "cluster"
)

// Entity identifies the monitored unit. Optional fields are empty strings
// when absent.
type Entity struct {
	ID       string     `json:"id" yaml:"id"`
	Type     EntityType `json:"type" yaml:"type"`
	Product  string     `json:"product" yaml:"product"`
	Market   string     `json:"market,omitempty" yaml:"market"`
	Campaign string     `json:"campaign,omitempty" yaml:"campaign"`
	AdGroup  string     `json:"ad_group,omitempty" yaml:"ad_group"`
	Keyword  string     `json:"keyword,omitempty" yaml:"keyword"`
	URL      string     `json:"url,omitempty" yaml:"url"`
}

type TimeWindow struct {
	BaselineDays int `json:"baseline_days" yaml:"baseline_days"`
	CurrentDays  int `json:"current_days" yaml:"current_days"`
}

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type BaselineData struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Period Period  `json:"period"`
}

type CurrentData struct {
	Value  float64 `json:"value"`
	Count  int     `json:"count"`
	Period Period  `json:"period"`
}

type AlertType string

const (
	AlertCPCJump        AlertType = "cpc_jump"
	AlertCTRDrop        AlertType = "ctr_drop"
	AlertSpendSpike     AlertType = "spend_spike"
	AlertConversionDrop AlertType = "conversion_drop"
	AlertQualityScore   AlertType = "quality_score"
	AlertZScore         AlertType = "zscore"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// SeverityBands are thresholds on |1 - changeRatio|. A nil band is skipped.
type SeverityBands struct {
	Critical *float64 `json:"critical,omitempty" yaml:"critical"`
	High     *float64 `json:"high,omitempty" yaml:"high"`
	Medium   *float64 `json:"medium,omitempty" yaml:"medium"`
}

type Thresholds struct {
	BaselineDays  int            `json:"baseline_days" yaml:"baseline_days"`
	CurrentDays   int            `json:"current_days" yaml:"current_days"`
	MinVolume     *float64       `json:"min_volume,omitempty" yaml:"min_volume"`
	ChangeFactor  *float64       `json:"change_factor,omitempty" yaml:"change_factor"`
	SeverityBands *SeverityBands `json:"severity_bands,omitempty" yaml:"severity_bands"`
	MinQuality    *float64       `json:"min_quality,omitempty" yaml:"min_quality"`
}

type AlertConfig struct {
	Type         AlertType    `json:"type" yaml:"type"`
	Enabled      bool         `json:"enabled" yaml:"enabled"`
	Metric       string       `json:"metric,omitempty" yaml:"metric"`
	VolumeMetric string       `json:"volume_metric,omitempty" yaml:"volume_metric"`
	Playbook     string       `json:"playbook,omitempty" yaml:"playbook"`
	Thresholds   Thresholds   `json:"thresholds" yaml:"thresholds"`
	NoiseControl noise.Policy `json:"noise_control" yaml:"noise_control"`
}

type Metrics struct {
	Baseline         BaselineData   `json:"baseline"`
	Current          CurrentData    `json:"current"`
	ChangePercentage float64        `json:"change_percentage"`
	ChangeAbsolute   float64        `json:"change_absolute"`
	ZScore           float64        `json:"z_score"`
	Additional       map[string]any `json:"additional,omitempty"`
}

type Detection struct {
	FirstSeen              time.Time `json:"first_seen"`
	LastSeen               time.Time `json:"last_seen"`
	Occurrences            int       `json:"occurrences"`
	ConsecutiveOccurrences int       `json:"consecutive_occurrences,omitempty"`
}

type Alert struct {
	ID               string     `json:"id"`
	Type             AlertType  `json:"type"`
	Severity         Severity   `json:"severity"`
	Entity           Entity     `json:"entity"`
	Window           TimeWindow `json:"window"`
	Metrics          Metrics    `json:"metrics"`
	Why              string     `json:"why"`
	Playbook         string     `json:"playbook,omitempty"`
	SuggestedActions []string   `json:"suggested_actions,omitempty"`
	Detection        Detection  `json:"detection"`
}

// Result is what Detect returns. Reason is set whenever Triggered is false.
type Result struct {
	Triggered bool   `json:"triggered"`
	Alert     *Alert `json:"alert,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
