package domain

import "strings"

var gatewayToOrderStatus = map[TransactionStatus]OrderStatus{
	TransactionStatusApproved: OrderStatusApproved,
	TransactionStatusDeclined: OrderStatusDeclined,
	TransactionStatusVoided:   OrderStatusVoided,
	TransactionStatusError:    OrderStatusError,
	TransactionStatusPending:  OrderStatusProcessing,
}

// IsTerminal reports whether no further transition is permitted from the status.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusApproved, TransactionStatusDeclined, TransactionStatusVoided, TransactionStatusError:
		return true
	default:
		return false
	}
}

// OrderStatusFromGateway maps a gateway status onto the order vocabulary.
// Unknown values map to pending.
func OrderStatusFromGateway(status string) OrderStatus {
	normalised := TransactionStatus(strings.ToUpper(strings.TrimSpace(status)))
	if mapped, ok := gatewayToOrderStatus[normalised]; ok {
		return mapped
	}
	return OrderStatusPending
}

// NormaliseTransactionStatus converts raw gateway strings into a known status, defaulting to PENDING.
func NormaliseTransactionStatus(raw string) TransactionStatus {
	status := TransactionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case TransactionStatusApproved, TransactionStatusDeclined, TransactionStatusVoided, TransactionStatusError, TransactionStatusPending:
		return status
	default:
		return TransactionStatusPending
	}
}
