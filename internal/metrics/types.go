package metrics

// MetricMeta describes a metric as reported to API consumers
type MetricMeta struct {
	Name       string     `json:"name"`
	Type       MetricType `json:"type"`
	Operations []string   `json:"operations"`
	Unit       *string    `json:"unit"`
}

// Tag is a tag key; called key to match the frontend type
type Tag struct {
	Key string `json:"key"`
}

// TagValue is a single tag key/value pair
type TagValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetricMetaWithTagKeys is MetricMeta plus the tag keys seen on the metric
type MetricMetaWithTagKeys struct {
	MetricMeta
	Tags []Tag `json:"tags"`
}
