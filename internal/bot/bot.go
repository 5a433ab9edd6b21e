// Package bot answers operator commands over Telegram long polling.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

// Source supplies the data the commands report.
type Source interface {
	LatestReadings(ctx context.Context) ([]storage.ReadingRecord, error)
	CurrentWeather(ctx context.Context) *weather.Snapshot
}

// Bot handles interactions with the Telegram API.
type Bot struct {
	api    *tgbotapi.BotAPI
	source Source
	logger zerolog.Logger
}

// New authorises against the Bot API. apiBase may be empty for the public endpoint.
func New(token, apiBase string, source Source, logger zerolog.Logger) (*Bot, error) {
	endpoint := tgbotapi.APIEndpoint
	if apiBase != "" {
		endpoint = strings.TrimRight(apiBase, "/") + "/bot%s/%s"
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		api:    api,
		source: source,
		logger: logger.With().Str("component", "telegram_bot").Logger(),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Str("account", b.api.Self.UserName).Msg("telegram bot listening")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handle(ctx, update.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, message *tgbotapi.Message) {
	user := ""
	if message.From != nil {
		user = message.From.UserName
	}
	b.logger.Debug().Str("user", user).Str("command", message.Command()).Msg("command received")

	msg := tgbotapi.NewMessage(message.Chat.ID, b.Reply(ctx, message.Command()))
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", message.Chat.ID).Msg("failed to send reply")
	}
}

// Reply renders the answer to a command.
func (b *Bot) Reply(ctx context.Context, command string) string {
	switch command {
	case "start":
		return "Selamat datang di Floodwatch! Gunakan /status untuk ketinggian air terkini atau /help untuk daftar perintah."
	case "help":
		return "Perintah yang tersedia:\n" +
			"/status - Ketinggian air dan status setiap sensor\n" +
			"/cuaca - Prakiraan cuaca terdekat\n" +
			"/help - Tampilkan pesan ini"
	case "status":
		return b.statusReply(ctx)
	case "cuaca":
		return b.weatherReply(ctx)
	default:
		return "Perintah tidak dikenal. Gunakan /help untuk melihat daftar perintah."
	}
}

func (b *Bot) statusReply(ctx context.Context) string {
	latest, err := b.source.LatestReadings(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("latest readings failed")
		return "Gagal mengambil data sensor. Coba lagi nanti."
	}
	if len(latest) == 0 {
		return "Belum ada data sensor."
	}

	var sb strings.Builder
	sb.WriteString("Status ketinggian air:\n")
	for _, rec := range latest {
		fmt.Fprintf(&sb, "\n📍 %s: %s (%d cm) pukul %s",
			rec.SensorID, rec.Status, rec.Depth, rec.CreatedAt.Local().Format(time.TimeOnly))
	}
	return sb.String()
}

func (b *Bot) weatherReply(ctx context.Context) string {
	wx := b.source.CurrentWeather(ctx)
	if wx == nil {
		return "Data cuaca tidak tersedia saat ini."
	}

	text := fmt.Sprintf("Cuaca terdekat (%s): %s\nSuhu: %s°C, Kelembaban: %s%%, Angin: %s km/j, Tutupan awan: %s%%",
		wx.ForecastTime, wx.Description,
		weather.Display(wx.Temperature), weather.Display(wx.Humidity), weather.Display(wx.WindSpeed), weather.Display(wx.CloudCover))
	if wx.HeavyRain {
		text += "\n🌧️ Waspadai potensi hujan deras."
	}
	return text
}
