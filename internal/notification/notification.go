package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"alpaca-trading-bot/internal/events"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyEntryFilled NotificationType = "entry_filled"
	NotifyExitsPlaced NotificationType = "exits_placed"
	NotifyTargetWon   NotificationType = "target_won"
	NotifyStopWon     NotificationType = "stop_won"
	NotifyAbandoned   NotificationType = "abandoned"
	NotifyError       NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Price     float64
	Timestamp time.Time
	Extra     map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendEntryFilled sends an entry fill notification
func (m *Manager) SendEntryFilled(symbol, orderID string, avgPrice float64) error {
	return m.Send(&Notification{
		Type:      NotifyEntryFilled,
		Title:     fmt.Sprintf("📈 Entry Filled: %s", symbol),
		Message:   fmt.Sprintf("Order %s filled @ %.2f", orderID, avgPrice),
		Symbol:    symbol,
		Price:     avgPrice,
		Timestamp: time.Now(),
	})
}

// SendExitsPlaced sends a notification that the position is protected
func (m *Manager) SendExitsPlaced(symbol string, targetPrice, stopPrice float64) error {
	return m.Send(&Notification{
		Type:      NotifyExitsPlaced,
		Title:     fmt.Sprintf("🛡️ Position Protected: %s", symbol),
		Message:   fmt.Sprintf("Target: %.2f | Stop: %.2f", targetPrice, stopPrice),
		Symbol:    symbol,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"target_price": targetPrice,
			"stop_price":   stopPrice,
		},
	})
}

// SendOutcome sends the resolution of a supervised exit pair
func (m *Manager) SendOutcome(outcome NotificationType, symbol, winnerOrderID string) error {
	var title, message string
	switch outcome {
	case NotifyTargetWon:
		title = fmt.Sprintf("✅ Target Hit: %s", symbol)
		message = fmt.Sprintf("Profit target filled (order %s), stop cancelled", winnerOrderID)
	case NotifyStopWon:
		title = fmt.Sprintf("🛑 Stopped Out: %s", symbol)
		message = fmt.Sprintf("Stop-loss filled (order %s), target cancelled", winnerOrderID)
	case NotifyAbandoned:
		title = fmt.Sprintf("⚠️ Supervision Abandoned: %s", symbol)
		message = "Exit orders left live, manual remediation required"
	default:
		return nil
	}

	return m.Send(&Notification{
		Type:      outcome,
		Title:     title,
		Message:   message,
		Symbol:    symbol,
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// SubscribeToBus wires the manager to lifecycle events so every notable
// transition reaches the configured channels.
func (m *Manager) SubscribeToBus(bus *events.EventBus) {
	bus.Subscribe(events.EventEntryFilled, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		orderID, _ := e.Data["order_id"].(string)
		avgPrice, _ := e.Data["avg_price"].(float64)
		m.SendEntryFilled(symbol, orderID, avgPrice)
	})
	bus.Subscribe(events.EventExitsPlaced, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		targetPrice, _ := e.Data["target_price"].(float64)
		stopPrice, _ := e.Data["stop_price"].(float64)
		m.SendExitsPlaced(symbol, targetPrice, stopPrice)
	})
	bus.Subscribe(events.EventTargetWon, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		winner, _ := e.Data["winner_order_id"].(string)
		m.SendOutcome(NotifyTargetWon, symbol, winner)
	})
	bus.Subscribe(events.EventStopWon, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		winner, _ := e.Data["winner_order_id"].(string)
		m.SendOutcome(NotifyStopWon, symbol, winner)
	})
	bus.Subscribe(events.EventSupervisionAbandoned, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		m.SendOutcome(NotifyAbandoned, symbol, "")
	})
	bus.Subscribe(events.EventError, func(e events.Event) {
		source, _ := e.Data["source"].(string)
		message, _ := e.Data["message"].(string)
		m.SendError(source, message)
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	// Create Discord embed
	color := 0x00FF00 // Green
	if notification.Type == NotifyError || notification.Type == NotifyStopWon || notification.Type == NotifyAbandoned {
		color = 0xFF0000 // Red
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	// Add fields if available
	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.2f", notification.Price), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
