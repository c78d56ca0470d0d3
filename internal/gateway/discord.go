package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/stride-agent/stride/internal/agent"
)

// DiscordGateway is the Discord counterpart of the Telegram gateway:
// each message is an objective, the reply is the final response.
type DiscordGateway struct {
	Session *discordgo.Session
	Runner  agent.Runner
	done    chan struct{}
}

func NewDiscordGateway(token string, runner agent.Runner) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &DiscordGateway{
		Session: session,
		Runner:  runner,
		done:    make(chan struct{}),
	}, nil
}

func (dg *DiscordGateway) Start() error {
	dg.Session.AddHandler(dg.onMessage)

	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Authorized on account %s", dg.Session.State.User.Username)

	<-dg.done
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || strings.TrimSpace(m.Content) == "" {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)

	chatID := "dc:" + m.ChannelID
	response, err := dg.Runner.Solve(context.Background(), chatID, m.Content)
	if err != nil {
		log.Printf("Run failed: %v", err)
		response = "I couldn't finish that objective: " + err.Error()
	}

	if _, err := s.ChannelMessageSend(m.ChannelID, response); err != nil {
		log.Printf("Failed to send Discord reply: %v", err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	channelID, ok := strings.CutPrefix(chatID, "dc:")
	if !ok || channelID == "" {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	_, err := dg.Session.ChannelMessageSend(channelID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	close(dg.done)
	return dg.Session.Close()
}
