// internal/segmentation/metrics.go
package segmentation

import (
	"encoding/json"
	"time"
)

// Metrics holds the timings of one Segment call and the input image size
type Metrics struct {
	PreprocessTime  time.Duration
	InferenceTime   time.Duration
	PostprocessTime time.Duration
	CompositeTime   time.Duration
	TotalTime       time.Duration
	ImageWidth      int
	ImageHeight     int
}

type metricsJSON struct {
	TotalTime       float64 `json:"total_time"`
	PreprocessTime  float64 `json:"preprocessing_time"`
	InferenceTime   float64 `json:"inference_time"`
	PostprocessTime float64 `json:"postprocess_time"`
	CompositeTime   float64 `json:"apply_mask_time"`
	ImageSize       [2]int  `json:"image_size"`
}

// MarshalJSON encodes durations as seconds and the size as [width, height].
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		TotalTime:       m.TotalTime.Seconds(),
		PreprocessTime:  m.PreprocessTime.Seconds(),
		InferenceTime:   m.InferenceTime.Seconds(),
		PostprocessTime: m.PostprocessTime.Seconds(),
		CompositeTime:   m.CompositeTime.Seconds(),
		ImageSize:       [2]int{m.ImageWidth, m.ImageHeight},
	})
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var v metricsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Metrics{
		TotalTime:       seconds(v.TotalTime),
		PreprocessTime:  seconds(v.PreprocessTime),
		InferenceTime:   seconds(v.InferenceTime),
		PostprocessTime: seconds(v.PostprocessTime),
		CompositeTime:   seconds(v.CompositeTime),
		ImageWidth:      v.ImageSize[0],
		ImageHeight:     v.ImageSize[1],
	}
	return nil
}

// Stages returns the per-stage durations keyed by stage name
func (m Metrics) Stages() map[string]time.Duration {
	return map[string]time.Duration{
		StagePreprocess:  m.PreprocessTime,
		StageInference:   m.InferenceTime,
		StagePostprocess: m.PostprocessTime,
		StageComposite:   m.CompositeTime,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
