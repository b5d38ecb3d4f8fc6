package email

import (
	"fmt"
	"strings"

	"github.com/dukerupert/vellum/internal/domain"
)

func rupees(paise int64) string {
	return fmt.Sprintf("Rs. %d.%02d", paise/100, paise%100)
}

// VerificationCode builds the OTP delivery email.
func VerificationCode(storeName, to, code string) *Email {
	return &Email{
		To:      []string{to},
		Subject: fmt.Sprintf("%s: your verification code", storeName),
		TextBody: fmt.Sprintf(
			"Your %s verification code is %s.\n\nIt expires in 10 minutes. If you did not request it, ignore this email.\n",
			storeName, code),
	}
}

// OrderConfirmation builds the customer receipt sent after payment succeeds.
func OrderConfirmation(storeName string, order *domain.Order, items []domain.OrderItem) *Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThank you for your order! Payment received, your books are being prepared.\n\n", order.FullName)
	fmt.Fprintf(&b, "Order %s\n\n", order.ID)
	for _, it := range items {
		fmt.Fprintf(&b, "  %s x%d  %s\n", it.Title, it.Quantity, rupees(it.UnitPricePaise*int64(it.Quantity)))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\n", rupees(order.SubtotalPaise))
	if order.AddonPaise > 0 {
		fmt.Fprintf(&b, "Add-ons: %s\n", rupees(order.AddonPaise))
	}
	if order.ShippingPaise > 0 {
		fmt.Fprintf(&b, "Shipping: %s\n", rupees(order.ShippingPaise))
	} else {
		fmt.Fprintf(&b, "Shipping: free\n")
	}
	if order.DiscountPaise > 0 {
		fmt.Fprintf(&b, "Discount: -%s\n", rupees(order.DiscountPaise))
	}
	fmt.Fprintf(&b, "Total: %s\n\nDelivery to:\n%s\n%s, %s %s\n", rupees(order.TotalPaise),
		order.Address, order.City, order.State, order.PinCode)

	return &Email{
		To:       []string{order.Email},
		Subject:  fmt.Sprintf("%s: order confirmed", storeName),
		TextBody: b.String(),
	}
}

// OrderShipped builds the dispatch notice.
func OrderShipped(storeName string, order *domain.Order) *Email {
	return &Email{
		To:      []string{order.Email},
		Subject: fmt.Sprintf("%s: your order is on its way", storeName),
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nYour order %s has been handed to the courier.\nShipment reference: %s\n\nHappy reading!\n",
			order.FullName, order.ID, order.CarrierOrderID),
	}
}

// OperatorAlert builds an internal notification to the store operator.
func OperatorAlert(operatorEmail, subject, body string) *Email {
	return &Email{
		To:       []string{operatorEmail},
		Subject:  subject,
		TextBody: body,
	}
}
