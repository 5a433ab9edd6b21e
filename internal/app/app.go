package app

import (
	"context"
	"errors"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/bot"
	"flood-alerts/internal/bridge"
	"flood-alerts/internal/config"
	"flood-alerts/internal/logging"
	"flood-alerts/internal/mqtt"
	"flood-alerts/internal/realtime"
	"flood-alerts/internal/retention"
	"flood-alerts/internal/scheduler"
	"flood-alerts/internal/server"
	"flood-alerts/internal/service"
	"flood-alerts/internal/storage"
	"flood-alerts/internal/version"
	"flood-alerts/internal/weather"
)

// Alert channel names accepted in alerting.channels.
const (
	channelTelegram = "telegram"
	channelMQTT     = "mqtt"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newWeather() weather.Fetcher {
	if !a.Config.Weather.Enabled {
		return nil
	}
	return weather.NewBMKG(weather.BMKGOptions{
		BaseURL:    a.Config.Weather.BaseURL,
		RegionCode: a.Config.Weather.RegionCode,
		Timeout:    a.Config.Weather.Timeout,
		UserAgent:  a.Config.Weather.UserAgent,
	}, a.Logger)
}

// newNotifier builds the fan-out of configured channels. The MQTT channel is
// only added when a broker client is available.
func (a *App) newNotifier(mq *mqtt.Client) alerting.Notifier {
	var notifiers alerting.Multi
	if a.channelEnabled(channelTelegram) && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.DispatchTimeout, a.Logger))
	}
	if a.channelEnabled(channelMQTT) && mq != nil {
		notifiers = append(notifiers, mqtt.NewNotifier(mq.Native(), a.topics(), a.Config.MQTT.QoS, a.Logger))
	}

	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

func (a *App) channelEnabled(name string) bool {
	return slices.ContainsFunc(a.Config.Alerting.Channels, func(c string) bool {
		return strings.EqualFold(strings.TrimSpace(c), name)
	})
}

func (a *App) topics() mqtt.Topics {
	return mqtt.Topics{Prefix: a.Config.MQTT.TopicPrefix}
}

func (a *App) openRepository(ctx context.Context) (storage.Repository, error) {
	repo, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Str("driver", a.Config.Database.Driver).Msg("storage ready")
	return repo, nil
}

// Serve runs the ingestion server and its background jobs until SIGINT or
// SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Logger.Info().Str("version", version.String()).Msg("starting floodwatch server")

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close storage")
		}
	}()

	hub := realtime.NewHub(a.Config.Realtime.HistorySize, a.Logger)
	a.seedHub(ctx, hub, repo)
	broadcasters := []service.Broadcaster{hub}

	var mq *mqtt.Client
	if a.Config.MQTT.Enabled {
		mq, err = mqtt.Connect(a.Config.MQTT, a.Logger)
		if err != nil {
			return err
		}
		defer mq.Close()
		broadcasters = append(broadcasters, mqtt.NewPublisher(mq.Native(), a.topics(), a.Config.MQTT.QoS, a.Config.MQTT.Timeout, a.Logger))
	}

	registry := alerting.NewRegistry()
	svc := service.New(a.Config, a.newWeather(), repo, a.newNotifier(mq), registry, a.Logger, broadcasters...)
	defer svc.Wait()

	var sub *mqtt.Subscriber
	if mq != nil && a.Config.MQTT.Subscribe {
		sub = mqtt.NewSubscriber(ctx, mq.Native(), a.topics(), a.Config.MQTT.QoS, svc, a.Logger)
		if err := sub.Subscribe(); err != nil {
			return err
		}
	}

	srv := server.New(a.Config.Server, svc, server.Options{
		Repository: repo,
		Registry:   registry,
		WebSocket:  hub.ServeWS,
		Clients:    hub.Clients,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if sub != nil {
		// Ingestion must stop before svc.Wait drains dispatches.
		g.Go(func() error {
			return sub.Run(gctx)
		})
	}

	if a.Config.Weather.Enabled && a.Config.Weather.PollInterval > 0 {
		sched, err := scheduler.New(scheduler.Options{
			Name:      "weather",
			Interval:  a.Config.Weather.PollInterval,
			Immediate: true,
		}, a.Logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return sched.Run(gctx, svc.WeatherTick)
		})
	}

	if a.Config.Retention.Schedule != "" {
		job := retention.NewJob(repo, a.Config.Retention.MaxAge, a.Logger)
		g.Go(func() error {
			return job.Run(gctx, a.Config.Retention.Schedule)
		})
	}

	if a.Config.Alerting.Telegram.Commands {
		tg := a.Config.Alerting.Telegram
		b, err := bot.New(tg.BotToken, tg.APIBase, svc, a.Logger)
		if err != nil {
			// Command replies are optional; the server keeps running without them.
			a.Logger.Error().Err(err).Msg("telegram commands disabled")
		} else {
			g.Go(func() error {
				return b.Run(gctx)
			})
		}
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("floodwatch server stopped")
	return nil
}

// seedHub replays recent readings so dashboards that connect right after a
// restart still get history.
func (a *App) seedHub(ctx context.Context, hub *realtime.Hub, repo storage.ReadingStore) {
	if a.Config.Realtime.HistorySize <= 0 {
		return
	}
	records, err := repo.ListRecentReadings(ctx, a.Config.Realtime.HistorySize)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("failed to load history for live feed")
		return
	}

	events := make([]realtime.Event, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		events = append(events, realtime.NewSensorUpdate(records[i]))
	}
	hub.Seed(events)
}

// Bridge forwards serial sensor lines to the ingestion endpoint until SIGINT
// or SIGTERM.
func (a *App) Bridge(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Logger.Info().Str("version", version.String()).Msg("starting serial bridge")
	if err := bridge.Run(ctx, a.Config.Bridge, a.Logger); err != nil {
		a.Logger.Error().Err(err).Msg("bridge terminated with error")
		return err
	}
	a.Logger.Info().Msg("serial bridge stopped")
	return nil
}

// ExportOptions hold parameters for exporting reading history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// ReplayOptions configure the replay command.
type ReplayOptions struct {
	From time.Time
	To   time.Time
}
