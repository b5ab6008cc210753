// internal/pkg/email/service.go
package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
	"github.com/your-org/storefront-backend/internal/pkg/money"
)

// Service renders and sends lifecycle notification emails. Sends are best
// effort: callers fire them after the transaction commits and a failure is
// logged here, never propagated into the order flow.
type Service struct {
	config    *config.Config
	logger    *logrus.Logger
	templates map[Type]*template.Template
}

// NewService creates a new email service
func NewService(cfg *config.Config) *Service {
	service := &Service{
		config:    cfg,
		logger:    logger.New(cfg),
		templates: make(map[Type]*template.Template),
	}
	service.loadTemplates()
	return service
}

// Send sends an email using the configured provider
func (s *Service) Send(email *Email) error {
	var err error
	switch s.config.External.Email.Provider {
	case "smtp":
		err = s.sendSMTP(email)
	case "console", "":
		// Development default: print instead of sending
		s.logger.WithFields(logrus.Fields{
			"to":      email.To,
			"subject": email.Subject,
			"type":    email.Type,
		}).Info("Email (console provider, not sent)")
	default:
		err = fmt.Errorf("unsupported email provider: %s", s.config.External.Email.Provider)
	}

	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"to":   email.To,
			"type": email.Type,
		}).Error("Failed to send email")
	}
	return err
}

// SendOrderConfirmation sends the order placed email
func (s *Service) SendOrderConfirmation(data OrderConfirmationData) error {
	data.TemplateData = s.baseData(data.UserName, data.UserEmail)

	htmlContent, err := s.renderTemplate(TypeOrderConfirmation, data)
	if err != nil {
		return fmt.Errorf("failed to render order confirmation template: %w", err)
	}

	return s.Send(&Email{
		To:          []string{data.UserEmail},
		Subject:     fmt.Sprintf("Order Confirmation - %s", data.OrderNumber),
		HTMLContent: htmlContent,
		Type:        TypeOrderConfirmation,
	})
}

// SendPaymentSuccess sends the payment captured email
func (s *Service) SendPaymentSuccess(data PaymentNotificationData) error {
	data.TemplateData = s.baseData(data.UserName, data.UserEmail)

	htmlContent, err := s.renderTemplate(TypePaymentSuccess, data)
	if err != nil {
		return fmt.Errorf("failed to render payment success template: %w", err)
	}

	return s.Send(&Email{
		To:          []string{data.UserEmail},
		Subject:     fmt.Sprintf("Payment Received - %s", data.OrderNumber),
		HTMLContent: htmlContent,
		Type:        TypePaymentSuccess,
	})
}

// SendPaymentFailed sends the payment failure email
func (s *Service) SendPaymentFailed(data PaymentNotificationData) error {
	data.TemplateData = s.baseData(data.UserName, data.UserEmail)

	htmlContent, err := s.renderTemplate(TypePaymentFailed, data)
	if err != nil {
		return fmt.Errorf("failed to render payment failed template: %w", err)
	}

	return s.Send(&Email{
		To:          []string{data.UserEmail},
		Subject:     fmt.Sprintf("Payment Failed - %s", data.OrderNumber),
		HTMLContent: htmlContent,
		Type:        TypePaymentFailed,
	})
}

// SendOrderStatusUpdate sends an order status update notification
func (s *Service) SendOrderStatusUpdate(data OrderStatusUpdateData) error {
	data.TemplateData = s.baseData(data.UserName, data.UserEmail)

	htmlContent, err := s.renderTemplate(TypeOrderStatusUpdate, data)
	if err != nil {
		return fmt.Errorf("failed to render order status update template: %w", err)
	}

	return s.Send(&Email{
		To:          []string{data.UserEmail},
		Subject:     fmt.Sprintf("Order Update - %s", data.OrderNumber),
		HTMLContent: htmlContent,
		Type:        TypeOrderStatusUpdate,
	})
}

func (s *Service) baseData(userName, userEmail string) TemplateData {
	return GetBaseTemplateData(
		s.config.App.CompanyName,
		s.config.App.CompanyEmail,
		userName,
		userEmail,
	)
}

// loadTemplates parses the built-in templates
func (s *Service) loadTemplates() {
	builtins := map[Type]string{
		TypeOrderConfirmation: orderConfirmationTemplate,
		TypePaymentSuccess:    paymentSuccessTemplate,
		TypePaymentFailed:     paymentFailedTemplate,
		TypeOrderStatusUpdate: orderStatusUpdateTemplate,
	}

	for name, text := range builtins {
		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"inr": money.FormatINR,
		}).Parse(text)
		if err != nil {
			s.logger.WithError(err).Warnf("Failed to parse email template %s", name)
			continue
		}
		s.templates[name] = tmpl
	}
}

// renderTemplate renders an email template with data
func (s *Service) renderTemplate(name Type, data interface{}) (string, error) {
	tmpl, exists := s.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
