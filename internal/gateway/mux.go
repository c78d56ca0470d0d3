package gateway

import (
	"fmt"
	"strings"

	"github.com/stride-agent/stride/internal/agent"
)

// Mux routes outbound messages to the gateway that owns the chat ID
// prefix ("tg:" for Telegram, "dc:" for Discord). The scheduler sends
// through it so objectives scheduled from any gateway reach the chat
// they came from.
type Mux struct {
	routes []route
}

type route struct {
	prefix  string
	gateway agent.Messenger
}

func NewMux() *Mux {
	return &Mux{}
}

// Route registers a gateway for a chat ID prefix. Prefixes are matched
// in registration order.
func (m *Mux) Route(prefix string, gateway agent.Messenger) {
	m.routes = append(m.routes, route{prefix: prefix, gateway: gateway})
}

func (m *Mux) Send(chatID string, text string) error {
	for _, r := range m.routes {
		if strings.HasPrefix(chatID, r.prefix) {
			return r.gateway.Send(chatID, text)
		}
	}
	return fmt.Errorf("no gateway registered for chat ID %s", chatID)
}
