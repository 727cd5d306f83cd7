// cmd/rmbg/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/SyedDaiam9101/rmbg-service/internal/config"
	"github.com/SyedDaiam9101/rmbg-service/internal/imgcodec"
	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
	"github.com/SyedDaiam9101/rmbg-service/internal/logging"
	"github.com/SyedDaiam9101/rmbg-service/internal/segmentation"
	"github.com/SyedDaiam9101/rmbg-service/internal/sizing"
)

func main() {
	modelPath := flag.String("model", "models/model.onnx", "Path to ONNX model file")
	inPath := flag.String("in", "", "Input image")
	outPath := flag.String("out", "", "Output PNG")
	bg := flag.String("bg", "", "Background color (#rgb, #rgba, #rrggbb or #rrggbbaa); empty is transparent")
	inputSize := flag.String("size", "1024,1024", "Model input size W,H")
	ortLib := flag.String("ort", os.Getenv("ORT_LIBRARY_PATH"), "Path to the onnxruntime shared library")
	maxSide := flag.Int("max", 3000, "Downscale inputs larger than this on either side")
	verbose := flag.Bool("v", false, "Log stage timings")
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	mode := "release"
	if *verbose {
		mode = "debug"
	}
	if err := logging.Init(mode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	width, height := config.ParseInputSize(*inputSize)
	engine, err := inference.Load(*modelPath, width, height, inference.Options{SharedLibraryPath: *ortLib})
	if err != nil {
		logging.L().Error("failed to load model", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}

	err = run(engine, *inPath, *outPath, *bg, *maxSide)
	engine.Close()
	if err != nil {
		logging.L().Error("background removal failed", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

// run decodes inPath, caps it to maxSide, removes the background and writes a PNG
func run(engine inference.Engine, inPath, outPath, bg string, maxSide int) error {
	logger := logging.L()

	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	img, _, err := imgcodec.Decode(data)
	if err != nil {
		return err
	}
	img = sizing.CapToBounds(img, maxSide, maxSide)

	pipeline, err := segmentation.New(engine, segmentation.WithLogger(logger))
	if err != nil {
		return err
	}

	res, err := pipeline.Segment(context.Background(), img, bg)
	if err != nil {
		return err
	}

	out, err := imgcodec.EncodePNG(res.Image)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}

	logger.Info("wrote "+outPath,
		zap.Int("width", res.Metrics.ImageWidth),
		zap.Int("height", res.Metrics.ImageHeight),
		zap.Duration("total", res.Metrics.TotalTime.Round(time.Millisecond)))
	return nil
}
