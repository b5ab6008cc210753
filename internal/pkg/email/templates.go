// internal/pkg/email/templates.go
package email

const emailShellHead = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.SiteName}}</title></head>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f4f4f4;">
  <div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 24px; border-radius: 8px;">
    <h1 style="color: #333; font-size: 20px;">{{.SiteName}}</h1>
    <p>Hello {{.UserName}},</p>`

const emailShellFoot = `
    <p>If you have any questions, write to <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>
    <p>Best regards,<br>{{.SiteName}} Team</p>
    <hr>
    <p style="font-size: 12px; color: #666;">&copy; {{.Year}} {{.SiteName}}. All rights reserved.</p>
  </div>
</body>
</html>`

const orderConfirmationTemplate = emailShellHead + `
    <p>Thank you for your order! We have received <strong>{{.OrderNumber}}</strong> placed on {{.OrderDate}}.</p>
    <table style="width: 100%; border-collapse: collapse; margin: 16px 0;">
      <tr style="background-color: #f8f8f8;">
        <th style="text-align: left; padding: 8px;">Item</th>
        <th style="text-align: right; padding: 8px;">Qty</th>
        <th style="text-align: right; padding: 8px;">Price</th>
      </tr>
      {{range .Items}}
      <tr>
        <td style="padding: 8px; border-top: 1px solid #eee;">{{.Name}}</td>
        <td style="text-align: right; padding: 8px; border-top: 1px solid #eee;">{{.Quantity}}</td>
        <td style="text-align: right; padding: 8px; border-top: 1px solid #eee;">{{inr .LineTotal}}</td>
      </tr>
      {{end}}
    </table>
    <table style="width: 100%; margin: 16px 0;">
      <tr><td>Subtotal</td><td style="text-align: right;">{{inr .Subtotal}}</td></tr>
      {{if .Discount}}<tr><td>Discount</td><td style="text-align: right;">-{{inr .Discount}}</td></tr>{{end}}
      <tr><td>Shipping</td><td style="text-align: right;">{{inr .Shipping}}</td></tr>
      <tr><td>Tax</td><td style="text-align: right;">{{inr .Tax}}</td></tr>
      <tr><td><strong>Total</strong></td><td style="text-align: right;"><strong>{{inr .Total}}</strong></td></tr>
    </table>
    <p>Payment method: {{.PaymentMethod}}<br>Shipping to: {{.ShippingAddress}}</p>` + emailShellFoot

const paymentSuccessTemplate = emailShellHead + `
    <p>We have received your payment of <strong>{{inr .Amount}}</strong> for order <strong>{{.OrderNumber}}</strong>.</p>
    {{if .TransactionID}}<p>Transaction reference: {{.TransactionID}}</p>{{end}}
    <p>Your order is confirmed and will be processed shortly.</p>` + emailShellFoot

const paymentFailedTemplate = emailShellHead + `
    <p>Unfortunately your payment of <strong>{{inr .Amount}}</strong> for order <strong>{{.OrderNumber}}</strong> did not go through.</p>
    {{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
    <p>No money has been captured. You can retry the payment from your orders page, or the order will be cancelled automatically when the payment window closes.</p>` + emailShellFoot

const orderStatusUpdateTemplate = emailShellHead + `
    <p>Your order <strong>{{.OrderNumber}}</strong> is now <strong>{{.Status}}</strong>.</p>
    {{if .StatusMessage}}<p>{{.StatusMessage}}</p>{{end}}
    {{if .TrackingNumber}}<p>Tracking number: {{.TrackingNumber}}{{if .Carrier}} ({{.Carrier}}){{end}}</p>{{end}}` + emailShellFoot
