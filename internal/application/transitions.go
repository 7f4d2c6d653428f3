package application

// transitions is the authoritative table of legal status moves. Any pair not
// listed is rejected. Payment confirmation is the only path that may skip
// pending_payment (draft straight to pending).
var transitions = map[Status][]Status{
	StatusDraft:             {StatusPendingPayment, StatusPending},
	StatusPendingPayment:    {StatusPending},
	StatusPending:           {StatusUnderReview, StatusDocumentsRequired, StatusRejected},
	StatusUnderReview:       {StatusDocumentsRequired, StatusDocumentsApproved, StatusSentToEmbassy, StatusRejected},
	StatusDocumentsRequired: {StatusDocumentsApproved},
	StatusDocumentsApproved: {StatusSentToEmbassy},
	StatusSentToEmbassy:     {StatusEmbassyApproved, StatusEmbassyRejected},
	StatusEmbassyApproved:   {StatusApproved},
	StatusEmbassyRejected:   {StatusRejected},
	StatusApproved:          nil,
	StatusRejected:          nil,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether moving from one status to another is legal
// per the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// requiresPayment reports whether a status sits past the payment boundary:
// entering it requires payment intent to exist (processing or completed).
func requiresPayment(s Status) bool {
	return s != StatusDraft && s != StatusPendingPayment
}

var esimTransitions = map[ESIMStatus][]ESIMStatus{
	ESIMPending:    {ESIMProcessing, ESIMCancelled},
	ESIMProcessing: {ESIMActivated, ESIMCancelled},
	ESIMActivated:  {ESIMDelivered, ESIMCancelled},
	ESIMDelivered:  nil,
	ESIMCancelled:  nil,
}

// Valid reports whether s is a known eSIM status value.
func (s ESIMStatus) Valid() bool {
	_, ok := esimTransitions[s]
	return ok
}

// Terminal reports whether the eSIM fulfillment queue is finished.
func (s ESIMStatus) Terminal() bool {
	return s == ESIMDelivered || s == ESIMCancelled
}

// CanTransitionESIM reports whether the eSIM sub-record may move between the
// two states. The eSIM queue never interacts with the visa transition table.
func CanTransitionESIM(from, to ESIMStatus) bool {
	for _, next := range esimTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}
