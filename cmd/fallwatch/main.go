// fallwatch watches a camera for people lying down and raises alerts.
//
// Usage:
//
//	fallwatch [-addr :5000] [-source 0] [-model models/yolov8n.onnx] [-autostart]
//	fallwatch -headless -source clip.mp4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/teslashibe/go-fallwatch/internal/config"
	"github.com/teslashibe/go-fallwatch/internal/log"
	"github.com/teslashibe/go-fallwatch/pkg/detection"
	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/framebuf"
	"github.com/teslashibe/go-fallwatch/pkg/history"
	"github.com/teslashibe/go-fallwatch/pkg/metrics"
	"github.com/teslashibe/go-fallwatch/pkg/monitor"
	"github.com/teslashibe/go-fallwatch/pkg/notify"
	"github.com/teslashibe/go-fallwatch/pkg/video"
	"github.com/teslashibe/go-fallwatch/pkg/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("fallwatch exited", "error", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, environment and flags, in that order.
func loadConfig() (config.Config, error) {
	cfg, err := config.FromEnv(config.Default())
	if err != nil {
		return cfg, err
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	source := flag.String("source", cfg.Source, "Camera index, file path or stream URL")
	model := flag.String("model", cfg.ModelPath, "YOLOv8 ONNX model path")
	headless := flag.Bool("headless", cfg.Headless, "Run one monitoring loop without the HTTP server")
	autostart := flag.Bool("autostart", cfg.AutoStart, "Start monitoring immediately")
	historyPath := flag.String("history", cfg.HistoryPath, "SQLite event history path (empty disables)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	frames := flag.Int("frames", cfg.ThresholdFrames, "Consecutive fall frames before confirming")
	cooldown := flag.Duration("cooldown", cfg.Cooldown, "Minimum time between alerts")
	flag.Parse()

	cfg.Addr, cfg.Source, cfg.ModelPath = *addr, *source, *model
	cfg.Headless, cfg.AutoStart = *headless, *autostart
	cfg.HistoryPath, cfg.LogLevel = *historyPath, *logLevel
	cfg.ThresholdFrames, cfg.Cooldown = *frames, *cooldown

	if problems := cfg.Validate(); len(problems) > 0 {
		return cfg, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.New()
	buffer := framebuf.New()

	detector, err := detection.NewYOLO(detection.YOLOConfig{
		ModelPath:        cfg.ModelPath,
		ConfidenceThresh: float32(cfg.DetectConfidence),
		NMSThresh:        float32(cfg.NMSThreshold),
		InputWidth:       640,
		InputHeight:      640,
	})
	if err != nil {
		return fmt.Errorf("load detector: %w", err)
	}
	defer detector.Close()
	log.Info("detector loaded", "model", cfg.ModelPath)

	dispatcher := monitor.NewDispatcher(monitor.DispatcherConfig{
		Timeout:    cfg.DeliveryTimeout,
		RetryDelay: cfg.RetryDelay,
	}, m)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := dispatcher.Close(sctx); err != nil {
			log.Warn("pending notifications dropped", "error", err)
		}
	}()

	notifiers, closeNotifiers := buildNotifiers(ctx, cfg)
	defer closeNotifiers()
	for _, h := range notifiers {
		dispatcher.Add(h)
	}

	var store *history.Store
	if cfg.HistoryPath != "" {
		store, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		dispatcher.Add(store)
		log.Info("event history enabled", "path", cfg.HistoryPath)
	}

	loop := monitor.Loop{
		Config: monitor.Config{
			Thresholds: fall.Thresholds{
				MinConfidence: cfg.MinConfidence,
				FallRatio:     cfg.FallRatio,
			},
			ThresholdFrames: cfg.ThresholdFrames,
			Cooldown:        cfg.Cooldown,
			Pacing:          cfg.Pacing,
		},
		Detector: detector,
		Buffer:   buffer,
		Events:   dispatcher,
		Metrics:  m,
	}
	open := func() (video.Source, error) { return video.OpenCapture(cfg.Source) }

	if cfg.Headless {
		return runHeadless(ctx, loop, open)
	}

	controller := monitor.NewController(loop, open)

	opts := web.Options{
		Control:        controller,
		Buffer:         buffer,
		Metrics:        m,
		StreamInterval: cfg.StreamInterval,
		JPEGQuality:    cfg.JPEGQuality,
		RequestLog:     log.ParseLevel(cfg.LogLevel) <= slog.LevelDebug,
	}
	if store != nil {
		opts.History = store
	}
	server := web.NewServer(opts)
	dispatcher.Add(server)

	go server.Run(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Listen(cfg.Addr) }()

	if cfg.AutoStart {
		controller.Start()
		log.Info("monitoring auto-started", "source", cfg.Source)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := controller.Shutdown(sctx); err != nil {
		log.Warn("monitor did not stop in time", "error", err)
	}
	return server.Shutdown(sctx)
}

// runHeadless runs a single loop until the source ends or a signal arrives.
func runHeadless(ctx context.Context, loop monitor.Loop, open monitor.Opener) error {
	src, err := open()
	if err != nil {
		return err
	}
	loop.Stats = &monitor.Stats{}

	var running atomic.Bool
	running.Store(true)
	log.Info("headless monitoring started")
	err = loop.Run(ctx, src, &running)

	snap := loop.Stats.Snapshot()
	log.Info("headless monitoring finished", "frames", snap.Frames)
	if errors.Is(err, video.ErrSourceExhausted) {
		return nil
	}
	return err
}

// buildNotifiers assembles every configured notification channel, each as
// its own dispatcher handler so a failing sink is retried alone. The log
// notifier is always present.
func buildNotifiers(ctx context.Context, cfg config.Config) ([]monitor.Handler, func()) {
	notifiers := []monitor.Handler{notify.NewHandler("log", notify.NewLog(log.With("component", "alerts")))}
	var closers []func()

	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			Location:    cfg.Telegram.Location,
			JPEGQuality: cfg.JPEGQuality,
		})
		if err != nil {
			log.Warn("telegram disabled", "error", err)
		} else {
			pctx, pcancel := context.WithTimeout(ctx, 10*time.Second)
			if name, err := tg.Ping(pctx); err != nil {
				log.Warn("telegram bot check failed", "error", err)
			} else {
				log.Info("telegram notifications enabled", "bot", name)
			}
			pcancel()
			notifiers = append(notifiers, notify.NewHandler("telegram", tg))
		}
	}

	if cfg.MQTT.Broker != "" {
		mq, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         1,
		})
		if err != nil {
			log.Warn("mqtt disabled", "error", err)
		} else {
			log.Info("mqtt notifications enabled", "broker", cfg.MQTT.Broker)
			notifiers = append(notifiers, notify.NewHandler("mqtt", mq))
			closers = append(closers, mq.Close)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Warn("redis ping failed, stream sink kept", "addr", cfg.Redis.Addr, "error", err)
		} else {
			log.Info("redis stream enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
		}
		pcancel()
		notifiers = append(notifiers, notify.NewHandler("redis", notify.NewRedisStream(rdb, cfg.Redis.Stream, 0)))
		closers = append(closers, func() { rdb.Close() })
	}

	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}
}
