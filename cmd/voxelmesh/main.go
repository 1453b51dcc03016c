// Command voxelmesh runs the terrain core headless: a scripted viewer
// walks across the world while chunks stream in, get meshed, and get
// evicted behind it. Useful for profiling and for exercising the full
// pipeline without a renderer attached.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"

	"voxelmesh/internal/config"
	"voxelmesh/internal/engine"
	"voxelmesh/internal/logging"
	"voxelmesh/internal/persist"
	"voxelmesh/internal/physics"
	"voxelmesh/internal/profiling"
	"voxelmesh/internal/transport/ws"
	"voxelmesh/internal/world"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (defaults apply when empty)")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
		duration   = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		speed      = flag.Float64("speed", 6.0, "viewer speed in voxels per second")
	)
	flag.Parse()

	logger := logging.New(log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds), *verbose)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("main", "load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var saves *persist.Store
	if cfg.SaveDir != "" {
		s, err := persist.Open(cfg.SaveDir)
		if err != nil {
			logger.Error("main", "open save dir: %v", err)
			os.Exit(1)
		}
		saves = s
		closer.Bind(func() { _ = s.Close() })
	}

	mgr := engine.New(cfg, logger, saves)
	closer.Bind(func() {
		if id, err := mgr.SaveEdited(); err != nil {
			logger.Error("main", "save edited chunks: %v", err)
		} else if id != "" {
			logger.Info("main", "saved edited chunks as %s", id)
		}
		mgr.Close()
	})

	feed := &ws.Feed{}
	if cfg.StatsAddr != "" {
		srv := ws.NewServer(cfg.StatsAddr, feed, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("ws", "stats server: %v", err)
			}
		}()
		closer.Bind(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	go run(mgr, feed, logger, *speed, *duration)

	closer.Hold()
}

// run drives the coordinator loop until the duration elapses or the
// process is interrupted.
func run(mgr *engine.Manager, feed *ws.Feed, logger logging.Logger, speed float64, duration time.Duration) {
	const tick = 50 * time.Millisecond

	start := time.Now()
	pos := mgl32.Vec3{0, 20, 0}
	mgr.UpdateViewer(pos)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastReport := start
	edited := false

	for now := range ticker.C {
		elapsed := now.Sub(start)
		if duration > 0 && elapsed >= duration {
			break
		}

		// Walk a slow arc so both axes see chunk churn.
		t := elapsed.Seconds()
		pos = mgl32.Vec3{
			float32(speed * t),
			20,
			float32(40 * math.Sin(t*0.05)),
		}
		mgr.UpdateViewer(pos)
		mgr.Update(now)
		feed.Publish(mgr.Stats())

		// One scripted edit near spawn, once terrain is up, to exercise
		// the edit and persistence paths: raycast down to the surface and
		// place a block on top of it.
		if !edited && elapsed > 3*time.Second {
			hit := physics.Raycast(
				mgl32.Vec3{2.5, 20, 2.5}, mgl32.Vec3{0, -1, 0},
				physics.MinReachDistance, 20, mgr.Sampler())
			if hit.Hit {
				target := mgl32.Vec3{
					float32(hit.AdjacentPosition[0]) + 0.5,
					float32(hit.AdjacentPosition[1]) + 0.5,
					float32(hit.AdjacentPosition[2]) + 0.5,
				}
				if mgr.Place(target, world.MaterialStone) {
					edited = true
					logger.Info("main", "placed stone at %v", target)
				}
			}
		}

		if now.Sub(lastReport) >= 5*time.Second {
			lastReport = now
			st := mgr.Stats()
			logger.Info("main",
				"chunks=%d data=%d mesh=%d queue=%d active=%d evicted=%d stuck=%d",
				st.Chunks, st.DataReady, st.MeshReady,
				st.Queue.Depth, st.Queue.Active, st.Queue.Evicted, st.StuckForced)
			logger.Debug("main", "hot: %s", profiling.TopN(5))
			profiling.Reset()
		}
	}

	closer.Close()
}
