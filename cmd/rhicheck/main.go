// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Rhicheck selects a driver and renders a G-buffer offscreen
// for a number of frames, reporting render pass cache
// statistics and checking the rendered output.
//
// Usage:
//
//	rhicheck [flags]
//
// The flags are:
//
//	-driver name
//		Substring of the driver name (defaults to $RHI_DRIVER).
//	-frames n
//		Number of frames to render.
//	-width w, -height h
//		Size of the render targets.
//	-list
//		List the registered drivers and exit.
//	-v
//		Enable debug logging.
//
// The Vulkan driver needs cgo, while the HAL backends of the
// wgpu driver need CGO_ENABLED=0. Which of the two can be
// selected thus depends on how the binary is built.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gviegas/rhi/driver"
	_ "github.com/gviegas/rhi/driver/wg"
)

var (
	drvName = flag.String("driver", os.Getenv(driver.EnvDriver), "substring of the driver `name`")
	frames  = flag.Int("frames", 3, "number of frames to render")
	width   = flag.Int("width", 1920, "render target width")
	height  = flag.Int("height", 1080, "render target height")
	list    = flag.Bool("list", false, "list registered drivers and exit")
	verbose = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	driver.SetLogger(log)

	if *list {
		for _, d := range driver.Drivers() {
			fmt.Println(d.Name())
		}
		return
	}
	if *frames < 1 || *width < 1 || *height < 1 {
		fmt.Fprintln(os.Stderr, "rhicheck: -frames, -width and -height must be positive")
		os.Exit(2)
	}
	if err := run(log); err != nil {
		log.Error("check failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, err := driver.Select(*drvName)
	if err != nil {
		return err
	}
	defer ctx.Close()
	gpu := ctx.GPU()
	info := gpu.Info()
	log.Info("using device", "driver", ctx.Driver().Name(), "name", info.Name, "type", info.Type)

	gb, err := newGBuffer(gpu, *width, *height)
	if err != nil {
		return err
	}
	defer gb.destroy()
	for i := range *frames {
		if err := gb.frame(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		s := gpu.PassStats()
		log.Debug("frame done", "frame", i, "hits", s.Hits, "misses", s.Misses)
	}
	s := gpu.PassStats()
	log.Info("render pass cache", "len", s.Len, "hits", s.Hits, "misses", s.Misses, "invalidations", s.Invalidations)
	if s.Misses != 1 {
		return fmt.Errorf("render pass cache: have %d misses, want 1", s.Misses)
	}
	return gb.verify()
}
