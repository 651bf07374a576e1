package protocol

// FallbackStatusMessage is used for statuses missing from the table.
const FallbackStatusMessage = "order status updated"

var statusMessages = map[string]string{
	"confirmed": "order confirmed",
	"preparing": "kitchen is preparing your order",
	"ready":     "your order is ready",
	"served":    "order served, enjoy",
}

// StatusMessage maps an order status to the customer-facing text.
func StatusMessage(status string) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return FallbackStatusMessage
}
