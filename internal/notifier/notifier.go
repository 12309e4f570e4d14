/**
 * @description
 * This package implements the notification side channel. It consumes the wallet
 * events published after commit (balance changes, top-up reviews, invoice
 * settlements) and sends plain-text emails to the finance inbox. Delivery is
 * best-effort end to end: a malformed payload is dropped, a mail failure is
 * logged, and neither ever touches ledger state.
 *
 * @dependencies
 * - encoding/json, fmt, log, net/smtp: Standard Go libraries.
 * - internal/domain: Event payload shapes and routing keys.
 */

package notifier

import (
	"encoding/json"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/easybooking/wallet-service/internal/domain"
)

// Mailer sends one plain-text message.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	Host string
	Port string
	From string
}

// Send composes a minimal RFC 5322 message and hands it to the relay.
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	addr := m.Host + ":" + m.Port
	return smtp.SendMail(addr, nil, m.From, []string{to}, []byte(msg))
}

// Notifier decodes wallet events and mails the finance inbox.
type Notifier struct {
	mailer       Mailer
	financeEmail string
}

// New creates a Notifier. mailer may be nil, in which case events are consumed
// and logged but no mail leaves the process.
func New(mailer Mailer, financeEmail string) *Notifier {
	return &Notifier{mailer: mailer, financeEmail: financeEmail}
}

// Bindings maps every wallet routing key to its handler, in the shape the
// consumer's ConsumeWithBindings expects.
func (n *Notifier) Bindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		domain.RouteBalanceChanged: n.HandleBalanceChanged,
		domain.RouteTopUpReviewed:  n.HandleTopUpReviewed,
		domain.RouteInvoiceSettled: n.HandleInvoiceSettled,
	}
}

// HandleBalanceChanged mails a summary of a ledger movement. Always acks:
// re-queuing cannot fix a payload we failed to act on.
func (n *Notifier) HandleBalanceChanged(body []byte) bool {
	var event domain.BalanceChangedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=notifier msg=\"malformed balance event; dropping\" err=%v", err)
		return true
	}

	subject := fmt.Sprintf("Wallet %s: %s of %s", shortID(event.AccountID.String()), event.Type, event.Amount.StringFixed(2))
	bodyText := fmt.Sprintf(
		"A %s of %s was recorded on the wallet of agency %s.\n\nReason: %s\nBalance after: %s\nTime: %s\n",
		event.Type, event.Amount.StringFixed(2), event.AgencyID,
		event.Reason, event.BalanceAfter.StringFixed(2), event.Timestamp.Format("2006-01-02 15:04:05 MST"))
	n.deliver(subject, bodyText)
	return true
}

// HandleTopUpReviewed mails the outcome of a deposit request review.
func (n *Notifier) HandleTopUpReviewed(body []byte) bool {
	var event domain.TopUpReviewedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=notifier msg=\"malformed top-up event; dropping\" err=%v", err)
		return true
	}

	subject := fmt.Sprintf("Top-up %s: %s", shortID(event.TopUpID.String()), event.Status)
	bodyText := fmt.Sprintf(
		"The top-up request of agency %s for %s was %s.\n",
		event.AgencyID, event.Amount.StringFixed(2), event.Status)
	if event.Note != "" {
		bodyText += "Note: " + event.Note + "\n"
	}
	n.deliver(subject, bodyText)
	return true
}

// HandleInvoiceSettled mails the settlement or refund of an invoice.
func (n *Notifier) HandleInvoiceSettled(body []byte) bool {
	var event domain.InvoiceSettledEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=notifier msg=\"malformed invoice event; dropping\" err=%v", err)
		return true
	}

	subject := fmt.Sprintf("Invoice %s: %s", event.InvoiceNumber, event.Status)
	bodyText := fmt.Sprintf(
		"Invoice %s of agency %s (%s) is now %s.\n",
		event.InvoiceNumber, event.AgencyID, event.Amount.StringFixed(2), event.Status)
	n.deliver(subject, bodyText)
	return true
}

func (n *Notifier) deliver(subject, body string) {
	if n.mailer == nil || n.financeEmail == "" {
		log.Printf("level=info component=notifier msg=\"mailer not configured; logging only\" subject=%q", subject)
		return
	}
	if err := n.mailer.Send(n.financeEmail, subject, body); err != nil {
		log.Printf("level=error component=notifier msg=\"mail delivery failed\" subject=%q err=%v", subject, err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
