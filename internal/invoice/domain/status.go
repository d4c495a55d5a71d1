package domain

import "time"

// EffectiveStatus derives the status to present for an invoice at a point in
// time. Overdue-ness is a view over ISSUED plus the due date, not a stored
// transition; the sweep job only materializes what this function computes.
func EffectiveStatus(inv Invoice, now time.Time) InvoiceStatus {
	if inv.Status == InvoiceStatusIssued && now.After(inv.DueAt) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// CanTransition reports whether the stored status may move from one state to
// another. Stored OVERDUE counts as ISSUED everywhere: the sweep only
// materializes what EffectiveStatus computes and must not change which
// transitions are legal.
func CanTransition(from, to InvoiceStatus) bool {
	switch to {
	case InvoiceStatusIssued:
		return from == InvoiceStatusDraft
	case InvoiceStatusPaid:
		return from == InvoiceStatusIssued || from == InvoiceStatusOverdue
	case InvoiceStatusOverdue:
		return from == InvoiceStatusIssued
	case InvoiceStatusCancelled:
		return from == InvoiceStatusDraft || from == InvoiceStatusIssued || from == InvoiceStatusOverdue
	case InvoiceStatusRefunded:
		return from == InvoiceStatusPaid
	default:
		return false
	}
}
