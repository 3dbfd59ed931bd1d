package entity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

const maxAmount = 1_000_000

// Validator applies per-type business rules, producing the canonical value
// or a reason specific enough for the question generator to restate.
type Validator struct {
	catalog contractx.Catalog
	horizon time.Duration
	now     func() time.Time
}

// NewValidator builds a validator. horizon bounds how far ahead a booking
// date may be; zero means the 90-day default.
func NewValidator(catalog contractx.Catalog, horizon time.Duration) *Validator {
	if horizon <= 0 {
		horizon = 90 * 24 * time.Hour
	}
	return &Validator{
		catalog: catalog,
		horizon: horizon,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks one raw value. collected supplies sibling entities, used
// to reject a time that lands in the past on an already-chosen date.
func (v *Validator) Validate(
	ctx context.Context,
	t contractx.EntityType,
	raw string,
	collected map[contractx.EntityType]string,
) contractx.ValidationResult {
	value := strings.TrimSpace(raw)
	if value == "" {
		return invalid("I didn't catch a value there.")
	}

	switch t {
	case contractx.EntityDate:
		return v.validateDate(value)
	case contractx.EntityTime:
		return v.validateTime(value, collected)
	case contractx.EntityPincode:
		return v.validatePincode(ctx, value)
	case contractx.EntityServiceType:
		return v.validateServiceType(ctx, value)
	case contractx.EntityAmount:
		return v.validateAmount(value)
	case contractx.EntityBookingID:
		return v.validateBookingID(value)
	default:
		return invalid(fmt.Sprintf("I can't handle %q here.", string(t)))
	}
}

func (v *Validator) validateDate(raw string) contractx.ValidationResult {
	now := v.now()
	d, err := ParseDate(raw, now)
	if err != nil {
		return invalid(fmt.Sprintf("I couldn't read %q as a date.", raw))
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return invalid(fmt.Sprintf("%s is a past date.", d.Format(DateLayout)))
	}
	if d.After(today.Add(v.horizon)) {
		return invalid(fmt.Sprintf("%s is too far ahead; we take bookings up to %d days out.",
			d.Format(DateLayout), int(v.horizon.Hours()/24)))
	}
	return valid(d.Format(DateLayout))
}

func (v *Validator) validateTime(raw string, collected map[contractx.EntityType]string) contractx.ValidationResult {
	hour, minute, err := ParseClock(raw)
	if err != nil {
		return invalid(fmt.Sprintf("I couldn't read %q as a time of day.", raw))
	}
	normalized := fmt.Sprintf("%02d:%02d", hour, minute)

	// paired with a chosen date, the combined timestamp must be ahead of now
	if dateStr, ok := collected[contractx.EntityDate]; ok && dateStr != "" {
		if d, err := time.ParseInLocation(DateLayout, dateStr, v.now().Location()); err == nil {
			at := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
			if at.Before(v.now()) {
				return invalid(fmt.Sprintf("%s on %s has already passed.", normalized, dateStr))
			}
		}
	}
	return valid(normalized)
}

func (v *Validator) validatePincode(ctx context.Context, raw string) contractx.ValidationResult {
	if !pincodePattern.MatchString(raw) {
		return invalid(fmt.Sprintf("%q doesn't look like a 6-digit pincode.", raw))
	}
	pin := pincodePattern.FindStringSubmatch(raw)[1]

	if v.catalog != nil {
		ok, err := v.catalog.IsServiceable(ctx, pin)
		if err != nil {
			return invalid("I couldn't verify that pincode right now, could you re-enter it?")
		}
		if !ok {
			return invalid(fmt.Sprintf("We don't serve pincode %s yet.", pin))
		}
	}
	return valid(pin)
}

func (v *Validator) validateServiceType(ctx context.Context, raw string) contractx.ValidationResult {
	if v.catalog == nil {
		return invalid("The service catalog is unavailable right now.")
	}
	res, err := v.catalog.ResolveServiceType(ctx, raw)
	if err != nil {
		return invalid("I couldn't check the service catalog right now, please try again.")
	}
	if !res.Matched {
		return invalid(fmt.Sprintf("%q isn't a service we offer.", raw))
	}
	if res.Ambiguous {
		return invalid(fmt.Sprintf("%s has a few options: %s.",
			res.Category, strings.Join(res.Options, ", ")))
	}
	return valid(res.Category)
}

func (v *Validator) validateAmount(raw string) contractx.ValidationResult {
	cleaned := strings.TrimSpace(raw)
	if m := amountPattern.FindStringSubmatch(cleaned); m != nil {
		if m[1] != "" {
			cleaned = m[1]
		} else {
			cleaned = m[2]
		}
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return invalid(fmt.Sprintf("I couldn't read %q as an amount.", raw))
	}
	if amount <= 0 {
		return invalid("The amount has to be more than zero.")
	}
	if amount > maxAmount {
		return invalid(fmt.Sprintf("%.0f is beyond what we can process.", amount))
	}
	return valid(strconv.FormatFloat(amount, 'f', -1, 64))
}

func (v *Validator) validateBookingID(raw string) contractx.ValidationResult {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if m := bookingIDPat.FindStringSubmatch(strings.ToLower(value)); m != nil {
		if m[1] != "" {
			return valid("BK" + m[1])
		}
		return valid(strings.ToUpper(m[2]))
	}
	if len(value) >= 3 && len(value) <= 24 {
		return valid(value)
	}
	return invalid(fmt.Sprintf("%q doesn't look like a booking reference.", raw))
}

func valid(normalized string) contractx.ValidationResult {
	return contractx.ValidationResult{Valid: true, Normalized: normalized}
}

func invalid(reason string) contractx.ValidationResult {
	return contractx.ValidationResult{Valid: false, Reason: reason}
}
