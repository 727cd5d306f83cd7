// internal/segmentation/segmentation_test.go
package segmentation

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/rmbg-service/internal/colors"
	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
)

func uniformRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// horizontalRamp has red increasing from 0 at the left edge to 255 at the right.
func horizontalRamp(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint8(x * 255 / (w - 1))
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: 10, B: 20, A: 255})
		}
	}
	return img
}

func TestPreprocess_GrayscaleShapeAndRange(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 50, 50))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 256)
	}

	tensor, err := Preprocess(gray, 1024, 1024)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 1024, 1024}, tensor.Shape)
	require.Len(t, tensor.Data, 3*1024*1024)

	for _, v := range tensor.Data {
		if v < -0.5-1e-6 || v > 0.5+1e-6 {
			t.Fatalf("value %f outside [-0.5, 0.5]", v)
		}
	}

	// gray input replicates into all channels
	plane := 1024 * 1024
	assert.Equal(t, tensor.Data[12345], tensor.Data[plane+12345])
	assert.Equal(t, tensor.Data[12345], tensor.Data[2*plane+12345])
}

func TestPreprocess_ChannelMajorLayout(t *testing.T) {
	img := uniformRGBA(6, 4, color.RGBA{R: 255, G: 0, B: 51, A: 255})

	tensor, err := Preprocess(img, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2, 3}, tensor.Shape)

	plane := 3 * 2
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 0.5, tensor.Data[i], 1e-3)
		assert.InDelta(t, -0.5, tensor.Data[plane+i], 1e-3)
		assert.InDelta(t, 0.2-0.5, tensor.Data[2*plane+i], 5e-3)
	}
}

func TestPreprocess_DiscardsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []uint8{255, 255, 255, 0})
	}

	tensor, err := Preprocess(img, 2, 2)
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
	assert.Equal(t, uint8(0), img.Pix[3], "input must not be modified")
}

func TestPreprocess_EmptyImage(t *testing.T) {
	_, err := Preprocess(image.NewRGBA(image.Rectangle{}), 8, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResize)
	assert.Equal(t, KindResize, KindOf(err))
}

func TestPostprocessMask_Uniform(t *testing.T) {
	out := inference.Tensor{Shape: []int64{1, 1, 8, 8}, Data: make([]float32, 64)}
	for i := range out.Data {
		out.Data[i] = 0.42
	}

	mask, err := PostprocessMask(out, 30, 20)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), mask.Bounds())
	for _, v := range mask.Pix {
		require.Equal(t, uint8(0), v)
	}
}

func TestPostprocessMask_Range(t *testing.T) {
	out := inference.Tensor{Shape: []int64{1, 1, 16, 16}, Data: make([]float32, 256)}
	for i := range out.Data {
		out.Data[i] = float32(i%16)*3 - 7
	}

	mask, err := PostprocessMask(out, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), mask.Bounds())

	lo, hi := uint8(255), uint8(0)
	for _, v := range mask.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	assert.Equal(t, uint8(0), lo)
	assert.Equal(t, uint8(255), hi)
	// left columns are background, right columns foreground
	assert.Less(t, mask.GrayAt(0, 50).Y, mask.GrayAt(99, 50).Y)
}

func TestPostprocessMask_BadShape(t *testing.T) {
	_, err := PostprocessMask(inference.Tensor{Shape: []int64{4}, Data: make([]float32, 4)}, 10, 10)
	assert.ErrorIs(t, err, ErrInference)

	_, err = PostprocessMask(inference.Tensor{Shape: []int64{1, 1, 4, 4}, Data: make([]float32, 3)}, 10, 10)
	assert.ErrorIs(t, err, ErrInference)

	_, err = PostprocessMask(inference.Tensor{Shape: []int64{1, 1, 2, 2}, Data: []float32{0, 1, 0, 1}}, 0, 10)
	assert.ErrorIs(t, err, ErrResize)
}

func TestComposite(t *testing.T) {
	src := uniformRGBA(4, 1, color.RGBA{R: 0, G: 0, B: 255, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(mask.Pix, []uint8{0, 128, 255, 64})

	t.Run("transparent", func(t *testing.T) {
		out, err := Composite(src, mask, nil)
		require.NoError(t, err)
		for x, m := range mask.Pix {
			assert.Equal(t, m, out.NRGBAAt(x, 0).A)
		}
		assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(2, 0))
		assert.Equal(t, color.NRGBA{}, out.NRGBAAt(0, 0))
		assert.Equal(t, color.NRGBA{B: 128, A: 128}, out.NRGBAAt(1, 0))
	})

	t.Run("opaque background", func(t *testing.T) {
		red := colors.RGBA(255, 0, 0, 255)
		out, err := Composite(src, mask, &red)
		require.NoError(t, err)
		for x := range mask.Pix {
			assert.Equal(t, uint8(255), out.NRGBAAt(x, 0).A)
		}
		assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(0, 0))
		assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(2, 0))
		assert.Equal(t, color.NRGBA{R: 127, B: 128, A: 255}, out.NRGBAAt(1, 0))
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := Composite(src, image.NewGray(image.Rect(0, 0, 3, 1)), nil)
		assert.Error(t, err)
	})
}

func TestBlend(t *testing.T) {
	assert.Equal(t, uint8(0), blend(0, 255, 0))
	assert.Equal(t, uint8(255), blend(0, 255, 255))
	assert.Equal(t, uint8(255), blend(255, 255, 77))
	assert.Equal(t, uint8(128), blend(0, 255, 128))
}

func TestNew_NilEngine(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestSegment_OpaqueBackground(t *testing.T) {
	engine := inference.NewMockWithSize(64, 64)
	p, err := New(engine)
	require.NoError(t, err)

	img := uniformRGBA(100, 100, color.RGBA{R: 73, G: 109, B: 137, A: 255})
	res, err := p.Segment(context.Background(), img, "#FF0000FF")
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 100, 100), res.Image.Bounds())
	for i := 3; i < len(res.Image.Pix); i += 4 {
		require.Equal(t, uint8(255), res.Image.Pix[i])
	}
	// uniform input gives a zero mask, so only background shows
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, res.Image.NRGBAAt(50, 50))
	require.NotNil(t, res.Background)
	assert.Equal(t, "#ff0000ff", colors.ToHex(*res.Background))

	m := res.Metrics
	assert.Equal(t, 100, m.ImageWidth)
	assert.Equal(t, 100, m.ImageHeight)
	for stage, d := range m.Stages() {
		assert.GreaterOrEqual(t, int64(d), int64(0), stage)
		assert.GreaterOrEqual(t, m.TotalTime, d, stage)
	}
	assert.GreaterOrEqual(t, m.TotalTime, m.InferenceTime+m.PostprocessTime+m.CompositeTime)
	assert.Equal(t, 1, engine.CallCount())
}

func TestSegment_TransparentAlphaFollowsMask(t *testing.T) {
	p, err := New(inference.NewMockWithSize(32, 32))
	require.NoError(t, err)

	img := horizontalRamp(80, 20)
	before := append([]uint8(nil), img.Pix...)

	res, err := p.Segment(context.Background(), img, "")
	require.NoError(t, err)
	assert.Nil(t, res.Background)
	assert.Equal(t, before, img.Pix, "input must not be modified")

	left := res.Image.NRGBAAt(0, 10).A
	right := res.Image.NRGBAAt(79, 10).A
	assert.Equal(t, uint8(0), left)
	assert.Equal(t, uint8(255), right)

	opaque := 0
	for i := 3; i < len(res.Image.Pix); i += 4 {
		if res.Image.Pix[i] == 255 {
			opaque++
		}
	}
	assert.Less(t, opaque, 80*20)
}

func TestSegment_InvalidColorIsTransparent(t *testing.T) {
	p, err := New(inference.NewMockWithSize(16, 16))
	require.NoError(t, err)

	res, err := p.Segment(context.Background(), uniformRGBA(10, 10, color.RGBA{A: 255}), "not-a-color")
	require.NoError(t, err)
	assert.Nil(t, res.Background)
	assert.Equal(t, uint8(0), res.Image.NRGBAAt(5, 5).A)
}

func TestSegment_InferenceError(t *testing.T) {
	engine := inference.NewMockWithSize(16, 16)
	engine.SetError("model execution failed")

	var observed error
	p, err := New(engine, WithObserver(func(m Metrics, err error) { observed = err }))
	require.NoError(t, err)

	res, err := p.Segment(context.Background(), uniformRGBA(10, 10, color.RGBA{A: 255}), "")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, inference.ErrRun)
	assert.Contains(t, err.Error(), "model execution failed")
	assert.Equal(t, KindInference, KindOf(err))
	assert.Equal(t, err, observed)
}

func TestSegment_ClosedEngine(t *testing.T) {
	engine := inference.NewMockWithSize(16, 16)
	p, err := New(engine)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	_, err = p.Segment(context.Background(), uniformRGBA(4, 4, color.RGBA{A: 255}), "")
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestSegment_NoOutputs(t *testing.T) {
	engine := &noOutputEngine{MockEngine: inference.NewMockWithSize(8, 8)}
	p, err := New(engine)
	require.NoError(t, err)

	_, err = p.Segment(context.Background(), uniformRGBA(4, 4, color.RGBA{A: 255}), "")
	assert.ErrorIs(t, err, ErrInference)
}

type noOutputEngine struct {
	*inference.MockEngine
}

func (e *noOutputEngine) Run(map[string]inference.Tensor) ([]inference.Tensor, error) {
	return nil, nil
}

func TestSegment_Observer(t *testing.T) {
	calls := 0
	var got Metrics
	p, err := New(inference.NewMockWithSize(8, 8), WithObserver(func(m Metrics, err error) {
		calls++
		got = m
		assert.NoError(t, err)
	}))
	require.NoError(t, err)

	_, err = p.Segment(context.Background(), uniformRGBA(12, 7, color.RGBA{A: 255}), "#fff")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 12, got.ImageWidth)
	assert.Equal(t, 7, got.ImageHeight)
}

func TestErrorKinds(t *testing.T) {
	err := stageError(KindResize, StagePreprocess, errors.New("boom"))
	assert.ErrorIs(t, err, ErrResize)
	assert.NotErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "preprocess")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "inference failure", KindInference.String())
}

func TestMetrics_JSON(t *testing.T) {
	m := Metrics{
		PreprocessTime:  500 * time.Millisecond,
		InferenceTime:   2 * time.Second,
		PostprocessTime: 0,
		CompositeTime:   250 * time.Millisecond,
		TotalTime:       3250 * time.Millisecond,
		ImageWidth:      640,
		ImageHeight:     480,
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.InDelta(t, 3.25, raw["total_time"], 1e-9)
	assert.InDelta(t, 2.0, raw["inference_time"], 1e-9)
	assert.Equal(t, []any{640.0, 480.0}, raw["image_size"])
	for _, key := range []string{"preprocessing_time", "postprocess_time", "apply_mask_time"} {
		assert.Contains(t, raw, key)
	}

	var back Metrics
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m, back)
}

func TestPreprocess_Normalization(t *testing.T) {
	img := uniformRGBA(8, 8, color.RGBA{R: 255, G: 51, B: 0, A: 255})

	tensor, err := Preprocess(img, 4, 4)
	require.NoError(t, err)

	plane := 16
	want := [3]float32{0.5, 51.0/255 - 0.5, -0.5}
	for c := 0; c < 3; c++ {
		for i := 0; i < plane; i++ {
			assert.InDelta(t, want[c], tensor.Data[c*plane+i], 0.005, "channel %d index %d", c, i)
		}
	}
}

func TestPostprocessMask_WithinOneLevelOfFloatReference(t *testing.T) {
	const w, h = 37, 23
	out := inference.Tensor{Shape: []int64{1, 1, h, w}, Data: make([]float32, w*h)}
	for i := range out.Data {
		// irregular values so many land near a truncation boundary
		out.Data[i] = float32((i*7919)%1000)/997 - 0.3
	}

	lo, hi := out.Data[0], out.Data[0]
	for _, v := range out.Data {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	mask, err := PostprocessMask(out, w, h)
	require.NoError(t, err)

	for i, v := range out.Data {
		ref := int(float64(v-lo) / float64(hi-lo) * 255)
		got := int(mask.Pix[i])
		diff := got - ref
		if diff < -1 || diff > 1 {
			t.Fatalf("pixel %d: got %d, float reference %d", i, got, ref)
		}
	}
}
