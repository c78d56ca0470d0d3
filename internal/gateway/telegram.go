package gateway

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stride-agent/stride/internal/agent"
)

// TelegramGateway treats every incoming message as an objective and
// replies with the run's final response.
type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Runner agent.Runner
}

func NewTelegramGateway(token string, runner agent.Runner) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:    bot,
		Runner: runner,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := fmt.Sprintf("tg:%d", update.Message.Chat.ID)
		response, err := tg.Runner.Solve(context.Background(), chatID, update.Message.Text)
		if err != nil {
			log.Printf("Run failed: %v", err)
			response = "I couldn't finish that objective: " + err.Error()
		}

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, response)
		tg.Bot.Send(msg)
	}
	return nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	var id int64
	if _, err := fmt.Sscanf(chatID, "tg:%d", &id); err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
