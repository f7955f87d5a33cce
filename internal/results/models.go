package results

// Entity is a named entity detected in a transcript segment.
type Entity struct {
	Text       string  `json:"text" yaml:"text"`
	Type       string  `json:"type" yaml:"type"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Segment is one transcript segment. Times are in seconds.
type Segment struct {
	ID         string   `json:"id" yaml:"id"`
	Start      float64  `json:"startTime" yaml:"start"`
	End        float64  `json:"endTime" yaml:"end"`
	Text       string   `json:"text" yaml:"text"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Speaker    string   `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Sentiment  string   `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
	Keywords   []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Entities   []Entity `json:"entities,omitempty" yaml:"entities,omitempty"`
}

// Chapter is a titled span of the media.
type Chapter struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Start   float64  `json:"startTime" yaml:"start"`
	End     float64  `json:"endTime" yaml:"end"`
	Summary string   `json:"summary" yaml:"summary"`
	Topics  []string `json:"keyTopics" yaml:"topics"`
}

type HeatmapPoint struct {
	Timestamp  float64 `json:"timestamp" yaml:"timestamp"`
	Engagement float64 `json:"engagement" yaml:"engagement"`
}

type Moment struct {
	Timestamp   float64 `json:"timestamp" yaml:"timestamp"`
	Description string  `json:"description" yaml:"description"`
	Score       float64 `json:"score" yaml:"score"`
}

type DropoffPoint struct {
	Timestamp   float64 `json:"timestamp" yaml:"timestamp"`
	DropoffRate float64 `json:"dropoffRate" yaml:"dropoff_rate"`
}

type DeviceShare struct {
	Device     string  `json:"device" yaml:"device"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// Analytics is the viewer analytics snapshot attached to a result.
type Analytics struct {
	TotalViews       int            `json:"totalViews" yaml:"total_views"`
	UniqueViewers    int            `json:"uniqueViewers" yaml:"unique_viewers"`
	AverageWatchTime float64        `json:"averageWatchTime" yaml:"average_watch_time"`
	CompletionRate   float64        `json:"completionRate" yaml:"completion_rate"`
	EngagementScore  float64        `json:"engagementScore" yaml:"engagement_score"`
	Heatmap          []HeatmapPoint `json:"heatmapData" yaml:"heatmap"`
	TopMoments       []Moment       `json:"topMoments" yaml:"top_moments"`
	Dropoff          []DropoffPoint `json:"viewerDropoff" yaml:"dropoff"`
	Devices          []DeviceShare  `json:"deviceBreakdown" yaml:"devices"`
}

// Result is the full processing output for one job.
type Result struct {
	JobID          string     `json:"videoId" yaml:"job_id"`
	Transcription  []Segment  `json:"transcription" yaml:"transcription"`
	Chapters       []Chapter  `json:"chapters" yaml:"chapters"`
	Analytics      *Analytics `json:"analytics,omitempty" yaml:"analytics,omitempty"`
	ProcessingTime float64    `json:"processingTime" yaml:"processing_time"`
	Cost           float64    `json:"cost" yaml:"cost"`
	Provider       string     `json:"provider" yaml:"provider"`
}

func (r Result) clone() Result {
	r.Transcription = cloneSegments(r.Transcription)
	r.Chapters = cloneChapters(r.Chapters)
	if r.Analytics != nil {
		a := r.Analytics.clone()
		r.Analytics = &a
	}
	return r
}

func cloneSegments(in []Segment) []Segment {
	if in == nil {
		return nil
	}
	out := make([]Segment, len(in))
	for i, seg := range in {
		seg.Keywords = append([]string(nil), seg.Keywords...)
		seg.Entities = append([]Entity(nil), seg.Entities...)
		out[i] = seg
	}
	return out
}

func cloneChapters(in []Chapter) []Chapter {
	if in == nil {
		return nil
	}
	out := make([]Chapter, len(in))
	for i, ch := range in {
		ch.Topics = append([]string(nil), ch.Topics...)
		out[i] = ch
	}
	return out
}

func (a Analytics) clone() Analytics {
	a.Heatmap = append([]HeatmapPoint(nil), a.Heatmap...)
	a.TopMoments = append([]Moment(nil), a.TopMoments...)
	a.Dropoff = append([]DropoffPoint(nil), a.Dropoff...)
	a.Devices = append([]DeviceShare(nil), a.Devices...)
	return a
}
