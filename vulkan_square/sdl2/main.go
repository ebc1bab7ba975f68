//go:generate glslc ../../shaders/shader.vert -o ../../shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../shaders/frag.spv

package main

import (
	"context"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vkngwrapper/square/config"
	"github.com/vkngwrapper/square/framesync"
	"github.com/vkngwrapper/square/mesh"
	"github.com/vkngwrapper/square/teardown"
	"github.com/vkngwrapper/square/vulkan"
	"github.com/vkngwrapper/square/window"
)

type application struct {
	cfg    config.Configuration
	logger *log.Logger
	guards teardown.Stack

	window    *window.Window
	vulkan    *vulkan.Context
	swapchain *vulkan.Swapchain
	pipeline  *vulkan.Pipeline
	mesh      *vulkan.MeshBuffers
	renderer  *framesync.Renderer
}

func loadMesh(path string) (*mesh.Mesh, error) {
	if path == "" {
		return mesh.Square(), nil
	}
	return mesh.LoadOBJFile(path)
}

func (app *application) init() error {
	var err error

	app.window, err = window.New(window.Options{
		Title:  app.cfg.Window.Title,
		Width:  app.cfg.Window.Width,
		Height: app.cfg.Window.Height,
		Logger: app.logger,
	})
	if err != nil {
		return err
	}
	app.guards.Push("window", app.window.Close)

	app.vulkan, err = vulkan.NewContext(app.window.SDL(), vulkan.Options{
		ApplicationName: app.cfg.Window.Title,
		Validation:      app.cfg.Renderer.Validation,
		Logger:          app.logger,
	})
	if err != nil {
		return err
	}
	app.guards.Push("vulkan context", app.vulkan.Close)

	app.swapchain, err = vulkan.NewSwapchain(app.vulkan, vulkan.SwapchainOptions{
		PreferMailbox: app.cfg.Renderer.PresentMode == config.PresentModeMailbox,
		Logger:        app.logger,
	})
	if err != nil {
		return err
	}
	app.guards.Push("swapchain", app.swapchain.Destroy)

	app.pipeline, err = vulkan.NewPipeline(app.vulkan, app.swapchain.RenderPass(), app.cfg.Renderer.ShaderDirectory)
	if err != nil {
		return err
	}
	app.guards.Push("pipeline", app.pipeline.Destroy)

	m, err := loadMesh(app.cfg.Renderer.MeshFile)
	if err != nil {
		return err
	}
	app.mesh, err = vulkan.UploadMesh(app.vulkan, m)
	if err != nil {
		return err
	}
	app.guards.Push("mesh buffers", app.mesh.Destroy)

	app.renderer, err = framesync.NewRenderer(app.vulkan, app.swapchain, app.mesh.Geometry(app.pipeline), framesync.Options{
		FramesInFlight: app.cfg.Renderer.FramesInFlight,
		FenceTimeout:   app.cfg.Renderer.FenceTimeout,
		ClearColor:     framesync.Color{0, 0, 0, 1},
		StatsInterval:  app.cfg.Renderer.StatsInterval,
		Logger:         app.logger,
	})
	if err != nil {
		return err
	}
	app.guards.Push("renderer", app.renderer.Close)

	return nil
}

func (app *application) Run(ctx context.Context) error {
	defer app.guards.Release()

	if err := app.init(); err != nil {
		return err
	}

	app.logger.WithFields(log.Fields{
		"indices": app.mesh.IndexCount,
		"mesh":    app.cfg.Renderer.MeshFile,
	}).Info("rendering")
	return app.renderer.RunLoop(ctx, app.window)
}

func run() error {
	cl, err := parseCommandLine(os.Args[1:])
	if err != nil {
		printUsage(os.Stdout)
		return err
	}
	if cl.Help {
		printUsage(os.Stdout)
		return nil
	}

	cfg, err := config.Load(cl.EnvFiles...)
	if err != nil {
		return err
	}
	if cl.Validation {
		cfg.Renderer.Validation = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New()
	logger.SetLevel(cfg.LogLevel)

	app := &application{cfg: cfg, logger: logger}
	app.guards.SetLogger(logger)

	return errors.Wrap(app.Run(context.Background()), "vulkan square")
}

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	if err := run(); err != nil {
		log.Fatalf("%+v\n", err)
	}
}
