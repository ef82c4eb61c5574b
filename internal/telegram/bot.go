package telegram

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	msgWelcome = "Добро пожаловать! Я показываю расписание занятий.\n\n" + msgHelp
	msgHelp    = "Команды:\n" +
		"/next - расписание на ближайший учебный день\n" +
		"/group <название> - расписание группы\n" +
		"/help - эта справка"
	msgGroupUsage = "Укажите группу: /group ИВТ-21"
	msgGroupNone  = "Группа «%s» не найдена."
	msgGroupMany  = "Найдено несколько групп, уточните запрос:\n%s"
	msgUnknown    = "Неизвестная команда. Наберите /help."
)

// Schedule answers the bot's questions.
type Schedule interface {
	NextDayMessage(ctx context.Context) (string, error)
	GroupMessage(ctx context.Context, group string) (string, error)
	ResolveGroup(ctx context.Context, input string) (string, []string, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	schedule Schedule
}

func New(token string, schedule Schedule) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Printf("Authorized on account %s", api.Self.UserName)
	return &Bot{api: api, schedule: schedule}, nil
}

// Run long-polls updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handle(ctx, update.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, m *tgbotapi.Message) {
	who := "unknown"
	if m.From != nil {
		who = m.From.UserName
		if who == "" {
			who = fmt.Sprint(m.From.ID)
		}
	}
	log.Printf("Получена команда /%s от пользователя %s", m.Command(), who)

	text := Reply(ctx, b.schedule, m.Command(), m.CommandArguments())
	msg := tgbotapi.NewMessage(m.Chat.ID, html.EscapeString(text))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending reply to %d: %v", m.Chat.ID, err)
	}
}

// Reply builds the answer to a command. Failures become user-facing texts.
func Reply(ctx context.Context, schedule Schedule, command, args string) string {
	switch command {
	case "start":
		return msgWelcome
	case "help":
		return msgHelp
	case "next":
		msg, err := schedule.NextDayMessage(ctx)
		if err != nil {
			log.Printf("Ошибка при обработке команды /next: %v", err)
		}
		return msg
	case "group":
		return groupReply(ctx, schedule, strings.TrimSpace(args))
	default:
		return msgUnknown
	}
}

func groupReply(ctx context.Context, schedule Schedule, input string) string {
	if input == "" {
		return msgGroupUsage
	}
	group, options, err := schedule.ResolveGroup(ctx, input)
	if err != nil {
		log.Printf("Ошибка при поиске группы %q: %v", input, err)
		group = input
	}
	if len(options) > 0 {
		return fmt.Sprintf(msgGroupMany, strings.Join(options, "\n"))
	}
	if group == "" {
		return fmt.Sprintf(msgGroupNone, input)
	}
	msg, err := schedule.GroupMessage(ctx, group)
	if err != nil {
		log.Printf("Ошибка при обработке команды /group: %v", err)
	}
	return msg
}
