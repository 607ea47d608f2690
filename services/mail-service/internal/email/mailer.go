package email

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Mailer renders and sends the petshop notification emails.
type Mailer struct {
	sender Sender
	logger *slog.Logger
}

func NewMailer(sender Sender, logger *slog.Logger) *Mailer {
	return &Mailer{sender: sender, logger: logger}
}

// SendPasswordReset delivers a reset token to the account's address. The
// token stays valid for 30 minutes after it was issued.
func (m *Mailer) SendPasswordReset(to, userName, token string) error {
	if userName == "" {
		userName = "Customer"
	}
	body := fmt.Sprintf(
		"Hello, %s!\n\nUse the token below to reset your password:\n%s\n\nValid for 30 minutes.",
		userName, token,
	)
	if err := m.sender.Send(to, "Password Reset - PetShop", body); err != nil {
		return fmt.Errorf("send password reset to %s: %w", to, err)
	}
	m.logger.Info("password reset email sent", "to", to)
	return nil
}

// SendStockAlert warns the operations inbox that a product dropped to or
// below its minimum stock level.
func (m *Mailer) SendStockAlert(to, productName string, current, minimum decimal.Decimal) error {
	subject := fmt.Sprintf("Low Stock Alert - %s", productName)
	body := fmt.Sprintf(
		"Product %q is running low.\n\nCurrent stock: %s\nMinimum stock: %s\n\nRestock soon to keep it available.",
		productName, current.String(), minimum.String(),
	)
	if err := m.sender.Send(to, subject, body); err != nil {
		return fmt.Errorf("send stock alert for %s: %w", productName, err)
	}
	m.logger.Info("low stock alert sent", "to", to, "product", productName)
	return nil
}
