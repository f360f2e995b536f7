package telegram

import (
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"rewardengine/internal/accrual"
	"rewardengine/internal/app"
	"rewardengine/internal/logging"
)

// Alerter posts operational alerts to one chat.
type Alerter struct {
	sender Sender
	chatID int64
	log    logging.Logger
}

func NewAlerter(sender Sender, chatID int64, log logging.Logger) *Alerter {
	return &Alerter{sender: sender, chatID: chatID, log: log}
}

// Alert sends text as is, escaping it for MarkdownV2 first.
func (a *Alerter) Alert(text string) error {
	_, err := a.sender.SendMessage(a.chatID, EscapeMarkdownV2(text), &gotgbot.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		a.log.Error("telegram alert to %d failed: %v", a.chatID, err)
	}
	return err
}

// ObserveTick alerts on ticks that failed, were cut short, or lost
// attributions. Clean ticks stay quiet.
func (a *Alerter) ObserveTick(r accrual.Report) {
	if r.Err == nil && r.Failed == 0 && r.AttributionFailures == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Accrual tick %s\n", app.MessageTime(r.At))
	fmt.Fprintf(&b, "listed %d, accrued %d, matured %d, failed %d\n", r.Listed, r.Accrued, r.Matured, r.Failed)
	if r.AttributionFailures > 0 {
		fmt.Fprintf(&b, "attribution failures: %d\n", r.AttributionFailures)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", r.Err)
	}
	_ = a.Alert(b.String())
}

var markdownV2Special = "\\_*[]()~`>#+-=|{}.!"

func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
