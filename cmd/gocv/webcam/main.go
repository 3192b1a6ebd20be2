// Package main feeds webcam frames to the fruit detector and draws the results.
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"github.com/nvr-ai/go-ripeness/detector"
	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/nvr-ai/go-ripeness/models/postprocess"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	app := &cli.App{
		Name:  "webcam",
		Usage: "run the fruit detector on a video capture device",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "config", Aliases: []string{"c"}, Required: true, Usage: "YAML detector config"},
			&cli.IntFlag{Name: "device", Value: 0, Usage: "video capture device id"},
			&cli.IntFlag{Name: "rotation", Usage: "clockwise rotation of the camera in degrees"},
			&cli.BoolFlag{Name: "mirror", Usage: "mirror frames, for front-facing cameras"},
			&cli.BoolFlag{Name: "show-window", Value: true, Usage: "draw detections in a window"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// overlay keeps the latest result for drawing on later frames.
type overlay struct {
	logger *zap.Logger

	mu     sync.Mutex
	latest postprocess.DetectionSet
	millis int64
}

func (o *overlay) OnDetect(set postprocess.DetectionSet, inferenceTimeMillis int64) {
	o.mu.Lock()
	o.latest = set
	o.millis = inferenceTimeMillis
	o.mu.Unlock()
}

func (o *overlay) OnEmptyDetect() {
	o.mu.Lock()
	o.latest = nil
	o.mu.Unlock()
	o.logger.Info("no fruits detected")
}

func (o *overlay) OnCounts(frame, cumulative detector.LabelCounts) {
	if len(frame) > 0 {
		o.logger.Debug(detector.FormatSummary(frame, cumulative))
	}
}

func (o *overlay) OnError(err error) {
	o.logger.Warn("detector error", zap.Error(err))
}

func (o *overlay) snapshot() (postprocess.DetectionSet, int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest, o.millis
}

func run(c *cli.Context) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := detector.LoadConfig(c.Path("config"))
	if err != nil {
		return err
	}
	rotation, err := images.ParseRotation(c.Int("rotation"))
	if err != nil {
		return err
	}

	ov := &overlay{logger: logger}
	det, err := detector.New(cfg, ov, detector.WithLogger(logger), detector.WithErrorReporter(ov))
	if err != nil {
		return err
	}
	defer det.Close()

	deviceID := c.Int("device")
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return errors.Wrapf(err, "error opening capture device %d", deviceID)
	}
	defer webcam.Close()

	var window *gocv.Window
	if c.Bool("show-window") {
		window = gocv.NewWindow("Fruit ripeness")
		defer window.Close()
	}

	img := gocv.NewMat()
	defer img.Close()

	green := color.RGBA{0, 255, 0, 0}
	backends := providers.Backends()
	current := 0

	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	logger.Info("reading camera", zap.Int("device", deviceID))
	for {
		if ok := webcam.Read(&img); !ok {
			return errors.Errorf("cannot read device %d", deviceID)
		}
		if img.Empty() {
			continue
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		pixels, err := img.ToImage()
		if err != nil {
			logger.Warn("frame conversion failed", zap.Error(err))
			continue
		}
		frame := images.Frame{Image: pixels, Rotation: rotation, Mirror: c.Bool("mirror"), Timestamp: time.Now()}

		// The detector keeps only the latest frame, so dropped frames are expected here.
		if err := det.Detect(frame); errors.Is(err, detector.ErrClosed) {
			return err
		}

		if window == nil {
			continue
		}

		set, millis := ov.snapshot()
		drawDetections(&img, set, rotation, c.Bool("mirror"), green)
		gocv.PutText(&img, fmt.Sprintf("%.1f fps | %d ms | %s", fps, millis, det.Backend()),
			image.Pt(10, 24), gocv.FontHersheyPlain, 1.4, green, 2)

		window.IMShow(img)
		switch key := window.WaitKey(1); key {
		case 'q', 27:
			return nil
		case 'b':
			// Cycle through the execution providers.
			current = (current + 1) % len(backends)
			backend, err := providers.NewConfig(string(backends[current]))
			if err == nil {
				err = det.Restart(backend)
			}
			if err != nil {
				logger.Warn("restart rejected", zap.Error(err))
			}
		}
	}
}

// drawDetections draws boxes, which are normalized to the oriented frame, on the raw frame.
// Only the unrotated case maps directly; other orientations skip drawing.
func drawDetections(img *gocv.Mat, set postprocess.DetectionSet, rotation images.Rotation, mirror bool, c color.RGBA) {
	if rotation != images.Rotate0 {
		return
	}
	w, h := float32(img.Cols()), float32(img.Rows())
	for _, d := range set {
		x1, x2 := d.Box.X1, d.Box.X2
		if mirror {
			x1, x2 = 1-x2, 1-x1
		}
		r := image.Rect(int(x1*w), int(d.Box.Y1*h), int(x2*w), int(d.Box.Y2*h))
		gocv.Rectangle(img, r, c, 2)
		gocv.PutText(img, fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence),
			image.Pt(r.Min.X, r.Min.Y-4), gocv.FontHersheyPlain, 1.2, c, 1)
	}
}
