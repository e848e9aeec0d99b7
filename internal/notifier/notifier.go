// Package notifier 交易事件的外部通知。
package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// Noop 空实现，未配置通知渠道时使用。
type Noop struct{}

func (Noop) SendText(string) error { return nil }
