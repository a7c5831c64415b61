// Package notify posts operational messages to the team channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"voxa/m/v2/app/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

var SystemNotifier Notifier = Nop{}

// System sends message to SystemNotifier and logs failures.
func System(ctx context.Context, message string) {
	if err := SystemNotifier.Notify(ctx, message); err != nil {
		log.WithError(err).Errorf("Failed to send system notification: %s", message)
		config.CONFIG.DataDogClient.Incr("notify.error", nil, 1)
	}
}

// New builds a notifier out of the configured channels. Channels without
// credentials are skipped.
func New(cfg *config.Config) (Notifier, error) {
	var notifiers Multi
	if cfg.TelegramSystemToken != "" && cfg.TelegramSystemTo != "" {
		telegram, err := NewTelegram(cfg)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, telegram)
	}
	if cfg.SlackBotToken != "" && cfg.SlackSystemChannel != "" {
		notifiers = append(notifiers, NewSlack(slack.New(cfg.SlackBotToken), cfg.SlackSystemChannel, cfg.AppName))
	}
	if len(notifiers) == 0 {
		log.Warn("No system notification channel configured")
		return Nop{}, nil
	}
	return notifiers, nil
}

type Nop struct{}

func (Nop) Notify(ctx context.Context, message string) error {
	log.Debugf("notification: %s", message)
	return nil
}

// Multi fans a message out to every notifier and joins the errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Telegram struct {
	Bot     *telego.Bot
	ChatID  telego.ChatID
	AppName string
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	chatID, err := strconv.ParseInt(cfg.TelegramSystemTo, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("NewTelegram: invalid chat id %q: %w", cfg.TelegramSystemTo, err)
	}
	bot, err := telego.NewBot(cfg.TelegramSystemToken, botLoggerOption(cfg))
	if err != nil {
		return nil, fmt.Errorf("NewTelegram: failed to create system bot: %w", err)
	}
	return &Telegram{Bot: bot, ChatID: tu.ID(chatID), AppName: cfg.AppName}, nil
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	_, err := t.Bot.SendMessage(tu.Message(t.ChatID, prefix(t.AppName, message)))
	if err != nil {
		return fmt.Errorf("Telegram.Notify: %w", err)
	}
	return nil
}

func botLoggerOption(cfg *config.Config) telego.BotOption {
	if cfg.Environment == "production" {
		return telego.WithDefaultLogger(false, true)
	}
	return telego.WithDefaultDebugLogger()
}

type Slack struct {
	Client  *slack.Client
	Channel string
	AppName string
}

func NewSlack(client *slack.Client, channel, appName string) *Slack {
	return &Slack{Client: client, Channel: channel, AppName: appName}
}

func (s *Slack) Notify(ctx context.Context, message string) error {
	_, _, err := s.Client.PostMessageContext(ctx, s.Channel, slack.MsgOptionText(prefix(s.AppName, message), false))
	if err != nil {
		return fmt.Errorf("Slack.Notify: %w", err)
	}
	return nil
}

func prefix(appName, message string) string {
	if appName == "" {
		return message
	}
	return appName + ": " + message
}
