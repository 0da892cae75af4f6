package normalize

import (
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"gorm.io/datatypes"
)

// thinIDKinds is checked in order; the first kind contained in the
// related_object type decides which id is set.
var thinIDKinds = []string{"customer", "subscription", "invoice", "payment_intent", "charge"}

// ExtractIDs returns the ids the event's own payload carries.
func ExtractIDs(evt *domain.ProviderEvent) domain.ExtractedIDs {
	return IDsFromPayload(Classify(evt))
}

func IDsFromPayload(p Payload) domain.ExtractedIDs {
	var ids domain.ExtractedIDs

	switch v := p.(type) {
	case ThinReference:
		for _, kind := range thinIDKinds {
			if !strings.Contains(v.Type, kind) {
				continue
			}
			setID(&ids, kind, optional(v.ID))
			break
		}
	case SnapshotObject:
		ids.CustomerID = optional(refField(v.Fields, "customer"))
		ids.SubscriptionID = ownOrRef(v, "subscription")
		ids.InvoiceID = ownOrRef(v, "invoice")
		ids.PaymentIntentID = ownOrRef(v, "payment_intent")
		ids.ChargeID = ownOrRef(v, "charge")
	}

	return ids
}

func ownOrRef(obj SnapshotObject, kind string) *string {
	if obj.Type == kind {
		return optional(obj.ID)
	}
	return optional(refField(obj.Fields, kind))
}

func setID(ids *domain.ExtractedIDs, kind string, id *string) {
	switch kind {
	case "customer":
		ids.CustomerID = id
	case "subscription":
		ids.SubscriptionID = id
	case "invoice":
		ids.InvoiceID = id
	case "payment_intent":
		ids.PaymentIntentID = id
	case "charge":
		ids.ChargeID = id
	}
}

// ExtractSubscriptionDetails reads billing details from subscription-shaped
// payloads. Thin events yield the zero value.
func ExtractSubscriptionDetails(evt *domain.ProviderEvent) domain.SubscriptionDetails {
	return DetailsFromPayload(Classify(evt))
}

func DetailsFromPayload(p Payload) domain.SubscriptionDetails {
	obj, ok := p.(SnapshotObject)
	if !ok {
		return domain.SubscriptionDetails{}
	}

	sub := objectField(obj.Fields, "subscription")
	if obj.Type == "subscription" {
		sub = obj.Fields
	}
	price := firstItemPrice(sub)
	recurring := objectField(price, "recurring")
	plan := objectField(obj.Fields, "plan")

	// Line item price first, then the object's own amounts, then legacy plan.
	return domain.SubscriptionDetails{
		Amount: firstAmount(
			intFrom(price, "unit_amount"),
			intFrom(obj.Fields, "amount"),
			intFrom(obj.Fields, "amount_due"),
		),
		Currency:           firstString(stringField(price, "currency"), stringField(obj.Fields, "currency")),
		Status:             firstString(stringField(sub, "status"), stringField(obj.Fields, "status")),
		PlanID:             firstString(stringField(price, "id"), stringField(plan, "id")),
		Interval:           firstString(stringField(recurring, "interval"), stringField(plan, "interval")),
		CurrentPeriodStart: unixField(sub, "current_period_start"),
		CurrentPeriodEnd:   unixField(sub, "current_period_end"),
		CancelAtPeriodEnd:  boolField(sub, "cancel_at_period_end"),
		CanceledAt:         unixField(sub, "canceled_at"),
	}
}

// Normalize builds the storable record. ID and UserID are left for the caller.
func Normalize(provider string, evt *domain.ProviderEvent, now time.Time) (*domain.NormalizedEvent, Payload) {
	payload := Classify(evt)

	return &domain.NormalizedEvent{
		Provider:            provider,
		ProviderEventID:     evt.ID,
		EventType:           evt.Type,
		APIVersion:          evt.APIVersion,
		Livemode:            evt.Livemode,
		ExtractedIDs:        IDsFromPayload(payload),
		SubscriptionDetails: DetailsFromPayload(payload),
		Payload:             datatypes.JSON(evt.Raw),
		Processed:           false,
		CreatedAt:           now,
	}, payload
}
