package entity

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusSkipped   DeliveryStatus = "skipped"
)

type DeliveryReason string

const (
	DeliveryReasonNone             DeliveryReason = ""
	DeliveryReasonMisconfigured    DeliveryReason = "misconfigured"
	DeliveryReasonInvalidRecipient DeliveryReason = "invalid_recipient"
	DeliveryReasonQuotaExceeded    DeliveryReason = "quota_exceeded"
	DeliveryReasonTimeout          DeliveryReason = "timeout"
	DeliveryReasonProviderError    DeliveryReason = "provider_error"
)

// Delivery is the tri-state outcome of handing a code to the notifier.
type Delivery struct {
	Status DeliveryStatus
	Reason DeliveryReason
}

func (d Delivery) Delivered() bool {
	return d.Status == DeliveryStatusDelivered
}

// Template parameter keys understood by the notifier.
const (
	ParamCode        = "code"
	ParamExpiresAt   = "expires_at"
	ParamDisplayName = "display_name"
)
