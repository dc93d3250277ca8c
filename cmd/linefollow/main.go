// linefollow drives the robot along a dark line seen by its camera.
// It runs the follower until interrupted, serving a live viewer and a small
// control API alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-linefollow/internal/config"
	"github.com/teslashibe/go-linefollow/internal/log"
	"github.com/teslashibe/go-linefollow/pkg/annotate"
	"github.com/teslashibe/go-linefollow/pkg/camera"
	"github.com/teslashibe/go-linefollow/pkg/debug"
	"github.com/teslashibe/go-linefollow/pkg/follower"
	"github.com/teslashibe/go-linefollow/pkg/robot"
	"github.com/teslashibe/go-linefollow/pkg/web"
)

type options struct {
	configPath  string
	debug       bool
	debugVision bool
	robotAddr   string
	dryRun      bool
	replay      string
	web         bool
	webAddr     string
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	log.InitWithOptions(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	debug.Enabled = cfg.Debug.Enabled
	debug.Vision = cfg.Debug.Vision

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts.configPath); err != nil {
		log.Error("linefollow failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to YAML config (watched for tuning changes)")
	flag.BoolVar(&o.debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&o.debugVision, "debug-vision", false, "Trace every vision stage (very verbose)")
	flag.StringVar(&o.robotAddr, "robot-addr", "", "Robot address (overrides ROBOT_ADDR / ROBOT_IP)")
	flag.BoolVar(&o.dryRun, "dry-run", false, "Log commands instead of moving the robot")
	flag.StringVar(&o.replay, "replay", "", "Replay still images from this directory instead of the camera")
	flag.BoolVar(&o.web, "web", true, "Serve the live viewer")
	flag.StringVar(&o.webAddr, "web-addr", "", "Viewer listen address (overrides config)")
	flag.Parse()
	return o
}

// applyFlags lets command line flags win over file and environment.
func applyFlags(cfg *config.Config, o options) {
	if o.debug {
		cfg.Debug.Enabled = true
		cfg.Log.Level = "debug"
	}
	if o.debugVision {
		cfg.Debug.Vision = true
		cfg.Log.Level = "debug"
	}
	if o.robotAddr != "" {
		cfg.Robot.Addr = o.robotAddr
	}
	if o.dryRun {
		cfg.Robot.Kind = config.RobotDryRun
	}
	if o.replay != "" {
		cfg.Camera = camera.ReplayConfig()
		cfg.Camera.Dir = o.replay
	}
	if !o.web {
		cfg.Web.Enabled = false
	}
	if o.webAddr != "" {
		cfg.Web.Addr = o.webAddr
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string) (err error) {
	logger := log.Component("linefollow")

	src, err := camera.Open(ctx, cfg.Camera, log.L())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	base, err := openBase(ctx, cfg.Robot, log.L())
	if err != nil {
		return err
	}
	defer func() {
		// Leave the wheels stopped whatever happened.
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = multierr.Combine(err, base.Stop(stopCtx), base.Close())
	}()

	tuning := follower.NewTuning(cfg.Params())
	tuning.OnChange(func(p follower.Params) {
		logger.Info("tuning changed",
			"method", p.Vision.Method,
			"block_size", p.Vision.BlockSize,
			"forward_speed_mmps", p.Steering.ForwardSpeedMMPS)
	})

	loop := follower.New(src, base, tuning,
		follower.WithConfig(cfg.Follower),
		follower.WithLogger(log.Component("follower")))
	session := follower.NewSession(loop, log.Component("session"))
	session.OnResult(func(r follower.Result) {
		logger.Info("run finished",
			"run_id", r.RunID,
			"state", r.State.String(),
			"kind", r.Kind.String(),
			"cycles", r.Cycles,
			"error", r.ErrText())
	})

	if cfg.Web.Enabled {
		reg := annotate.NewRegistry()
		if err := annotate.Defaults(reg, cfg.Web.Title); err != nil {
			return fmt.Errorf("annotations: %w", err)
		}
		server := web.NewServer(cfg.Web.Addr, session, loop, tuning,
			web.WithLogger(log.Component("web")),
			web.WithAnnotations(reg))
		loop.SetSink(server)
		session.OnResult(func(r follower.Result) {
			server.Event("result", web.NewResultInfo(r))
		})

		go func() {
			if err := server.Start(); err != nil {
				logger.Error("viewer stopped", "error", err)
			}
		}()
		defer func() { err = multierr.Append(err, server.Shutdown()) }()
	}

	if configPath != "" {
		go func() {
			werr := config.Watch(ctx, configPath, log.Component("config"), func(next *config.Config) {
				if err := tuning.Set(next.Params()); err != nil {
					logger.Warn("reloaded tuning rejected", "error", err)
				}
			})
			if werr != nil {
				logger.Warn("config watch disabled", "error", werr)
			}
		}()
	}

	logger.Info("starting",
		"camera", cfg.Camera.Kind,
		"robot", cfg.Robot.Kind,
		"robot_addr", cfg.Robot.Addr,
		"web", cfg.Web.Enabled)

	session.Run(ctx)

	logger.Info("shutting down", "runs", session.Runs())
	return nil
}

// openBase builds the actuator described by rc: a drive train, optionally
// joined with a bus-servo head and wrapped to reject overlapping commands.
func openBase(ctx context.Context, rc config.RobotConfig, logger *slog.Logger) (robot.Base, error) {
	var base robot.Base
	switch rc.Kind {
	case config.RobotHTTP:
		base = robot.NewHTTPBase(rc.Addr, robot.WithHTTPLogger(logger.With("component", "robot")))
	case config.RobotSerial:
		sb, err := robot.OpenSerialBase(rc.Serial, logger.With("component", "robot"))
		if err != nil {
			return nil, err
		}
		base = sb
	case config.RobotDryRun:
		base = robot.NewDryRun(rc.Simulate, logger.With("component", "robot"))
	default:
		return nil, fmt.Errorf("unknown robot kind %q", rc.Kind)
	}

	if rc.Servo.Enabled {
		head, err := robot.OpenServoHead(ctx, rc.Servo.ServoConfig)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("head servo: %w", err), base.Close())
		}
		base = robot.Compose(base, head)
	}

	if rc.Exclusive {
		base = robot.NewExclusive(base)
	}
	return base, nil
}
