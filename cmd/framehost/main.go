// Command framehost displays an image or an animated test pattern in a window
// through the Vulkan renderer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/framehost/assets"
	"github.com/vkngwrapper/framehost/render"
	"github.com/vkngwrapper/framehost/sdlwindow"
)

type config struct {
	vertexPath   string
	fragmentPath string
	imagePath    string
	maxSide      int

	width  int
	height int
	title  string

	patternWidth  int
	patternHeight int

	logLevel slog.Level
	options  render.Options
}

func parseColor(value string) ([4]float32, error) {
	var color [4]float32
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return color, errors.Newf("color %q needs four comma separated components", value)
	}
	for i, part := range parts {
		component, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return color, errors.Wrapf(err, "color component %d", i)
		}
		color[i] = float32(component)
	}
	return color, nil
}

func parseFlags(args []string) (*config, error) {
	cfg := &config{options: render.DefaultOptions()}

	flags := flag.NewFlagSet("framehost", flag.ContinueOnError)
	flags.StringVar(&cfg.vertexPath, "vert", "shaders/quad.vert.spv", "compiled vertex shader")
	flags.StringVar(&cfg.fragmentPath, "frag", "shaders/quad.frag.spv", "compiled fragment shader")
	flags.StringVar(&cfg.imagePath, "image", "", "PNG, BMP or WebP image to show instead of the test pattern")
	flags.IntVar(&cfg.maxSide, "max-size", 4096, "downscale images whose longer side exceeds this")
	flags.IntVar(&cfg.width, "width", 800, "initial window width")
	flags.IntVar(&cfg.height, "height", 600, "initial window height")
	flags.StringVar(&cfg.title, "title", "framehost", "window title")
	flags.IntVar(&cfg.patternWidth, "pattern-width", 256, "test pattern width")
	flags.IntVar(&cfg.patternHeight, "pattern-height", 240, "test pattern height")

	flags.BoolVar(&cfg.options.EnableValidation, "validation", false, "enable the Khronos validation layer")
	flags.IntVar(&cfg.options.FramesInFlight, "frames", render.DefaultFramesInFlight, "frames in flight")
	linear := flags.Bool("linear", false, "sample the image with linear filtering")
	stretch := flags.Bool("stretch", false, "stretch the image over the whole window")
	clearColor := flags.String("clear", "0,0,0,1", "clear color as r,g,b,a")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn or error")

	err := flags.Parse(args)
	if err != nil {
		return nil, err
	}

	cfg.options.AppName = cfg.title
	cfg.options.NearestFilter = !*linear
	cfg.options.PreserveAspect = !*stretch

	cfg.options.ClearColor, err = parseColor(*clearColor)
	if err != nil {
		return nil, err
	}

	err = cfg.logLevel.UnmarshalText([]byte(*logLevel))
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	if cfg.width <= 0 || cfg.height <= 0 {
		return nil, errors.Newf("invalid window size %dx%d", cfg.width, cfg.height)
	}
	if cfg.patternWidth <= 0 || cfg.patternHeight <= 0 {
		return nil, errors.Newf("invalid pattern size %dx%d", cfg.patternWidth, cfg.patternHeight)
	}

	return cfg, nil
}

type app struct {
	cfg      *config
	window   *sdlwindow.Window
	renderer *render.Renderer
	pattern  *assets.Pattern
}

func (a *app) run() error {
	bundle, err := assets.LoadAll(context.Background(), a.cfg.vertexPath, a.cfg.fragmentPath, a.cfg.imagePath)
	if err != nil {
		return err
	}
	a.cfg.options.VertexShader = bundle.VertexShader
	a.cfg.options.FragmentShader = bundle.FragmentShader

	a.window, err = sdlwindow.New(a.cfg.title, a.cfg.width, a.cfg.height)
	if err != nil {
		return err
	}
	defer a.window.Close()

	width, height := a.window.DrawableSize()
	a.renderer = render.New(a.cfg.options)
	err = a.renderer.Init(a.window, core1_0.Extent2D{Width: width, Height: height})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.renderer.Shutdown(); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}()

	info := a.renderer.DeviceInfo()
	slog.Info("renderer ready", "device", info.Name, "type", info.Type)

	if bundle.Image != nil {
		img := bundle.Image.Fit(a.cfg.maxSide)
		err = a.renderer.LoadTexture(img.Pixels, img.Width, img.Height)
	} else {
		a.pattern = assets.NewPattern(a.cfg.patternWidth, a.cfg.patternHeight)
		err = a.renderer.LoadTexture(a.pattern.Next(), a.pattern.Width, a.pattern.Height)
	}
	if err != nil {
		return err
	}

	return a.mainLoop()
}

func (a *app) mainLoop() error {
	lastTitle := time.Now()

	for {
		if a.window.Poll() {
			a.renderer.NotifyResize()
		}
		if a.window.Closing() {
			return nil
		}
		if a.window.Minimized() {
			a.window.WaitEvent()
			continue
		}

		if a.pattern != nil {
			err := a.renderer.UpdateTexture(a.pattern.Next())
			if err != nil {
				return err
			}
		}

		err := a.renderer.DrawFrame()
		if err != nil {
			return err
		}

		if time.Since(lastTitle) >= time.Second {
			lastTitle = time.Now()
			stats := a.renderer.Stats()
			if avg := stats.AverageFrame(); avg > 0 {
				a.window.SetTitle(fmt.Sprintf("%s - %.0f fps", a.cfg.title, float64(time.Second)/float64(avg)))
			}
		}
	}
}

func main() {
	runtime.LockOSThread()

	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)
	render.SetLogger(logger.With("component", "render"))

	a := &app{cfg: cfg}
	err = a.run()
	if err != nil {
		slog.Error("framehost failed", "kind", render.KindOf(err), "err", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}
