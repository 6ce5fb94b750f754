package dto

// WebhookResponse acknowledges a payment provider delivery. A 2xx with Error
// set means the event was accepted but needs operator follow-up.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	BookingID string `json:"bookingId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}
