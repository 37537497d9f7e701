package utils

import (
	"fmt"
	"html"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/wneessen/go-mail"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func GetEmailConfig() *EmailConfig {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil || port == 0 {
		port = 587
	}
	return &EmailConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
}

func (c *EmailConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

func SendEmail(to, subject, htmlBody string) error {
	config := GetEmailConfig()
	if !config.Configured() {
		return fmt.Errorf("SMTP not configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	return client.DialAndSend(msg)
}

// ReceiptLine is one row of an order receipt.
type ReceiptLine struct {
	Name     string
	Quantity int
	Price    int64
}

// BuildReceiptHTML renders the order receipt body.
func BuildReceiptHTML(name, transactionID string, amount int64, lines []ReceiptLine) string {
	var rows strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td><td>%s</td></tr>\n",
			html.EscapeString(l.Name), l.Quantity, FormatCents(l.Price))
	}

	greeting := "there"
	if first := strings.Fields(name); len(first) > 0 {
		greeting = first[0]
	}

	return fmt.Sprintf(`<h2>Thanks for your order!</h2>
<p>Hi %s,</p>
<p>Your receipt reference is <strong>%s</strong>.</p>
<table>
<tr><th>Item</th><th>Qty</th><th>Price</th></tr>
%s</table>
<p>Order total: <strong>%s</strong></p>`,
		html.EscapeString(greeting), html.EscapeString(transactionID), rows.String(), FormatCents(amount))
}

// SendOrderReceipt emails the receipt in the background. Failures are logged only.
func SendOrderReceipt(email, name, transactionID string, amount int64, lines []ReceiptLine) {
	if !GetEmailConfig().Configured() {
		return
	}
	go func() {
		subject := fmt.Sprintf("Order Confirmed - %s", transactionID)
		body := BuildReceiptHTML(name, transactionID, amount, lines)
		if err := SendEmail(email, subject, body); err != nil {
			slog.Error("failed to send order receipt", "email", email, "transaction_id", transactionID, "error", err)
		}
	}()
}
