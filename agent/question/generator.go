package question

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

type templateKey struct {
	intent contractx.Intent
	entity contractx.EntityType
}

// Placeholders in braces are filled from collected entities when present;
// a template whose placeholder is missing falls back to the next phrasing.
var intentTemplates = map[templateKey][]string{
	{contractx.IntentBookingManagement, contractx.EntityServiceType}: {
		"Which service would you like to book?",
		"What service do you need help with?",
	},
	{contractx.IntentBookingManagement, contractx.EntityDate}: {
		"What date would you like the {service_type} service?",
		"When should we schedule your {service_type} service?",
		"Which date works for you?",
	},
	{contractx.IntentBookingManagement, contractx.EntityTime}: {
		"What time on {date} suits you?",
		"What time of day works best?",
	},
	{contractx.IntentBookingManagement, contractx.EntityPincode}: {
		"What's the pincode where you need the service?",
		"Which pincode should the professional come to?",
	},
	{contractx.IntentCancellation, contractx.EntityBookingID}: {
		"Which booking would you like to cancel? A booking reference like BK1234 helps.",
		"Could you share the booking reference you want cancelled?",
	},
	{contractx.IntentComplaint, contractx.EntityBookingID}: {
		"Which booking is the complaint about? Please share its reference.",
		"Could you share the booking reference so I can register the complaint against it?",
	},
	{contractx.IntentBookingStatus, contractx.EntityBookingID}: {
		"Which booking should I look up? A reference like BK1234 helps.",
	},
	{contractx.IntentPricingInquiry, contractx.EntityServiceType}: {
		"Which service do you want pricing for?",
	},
}

var genericTemplates = map[contractx.EntityType][]string{
	contractx.EntityServiceType: {"Which service do you mean?"},
	contractx.EntityDate:        {"What date should I use?"},
	contractx.EntityTime:        {"What time should I use?"},
	contractx.EntityPincode:     {"What's your 6-digit pincode?"},
	contractx.EntityAmount:      {"What amount should I note down?"},
	contractx.EntityBookingID:   {"Could you share the booking reference?"},
}

var entityLabels = map[contractx.EntityType]string{
	contractx.EntityServiceType: "service",
	contractx.EntityDate:        "date",
	contractx.EntityTime:        "time",
	contractx.EntityPincode:     "pincode",
	contractx.EntityAmount:      "amount",
	contractx.EntityBookingID:   "booking reference",
}

// Generator produces the next clarifying question or confirmation prompt.
// Variant selection keys off the turn count so repeated asks rotate
// phrasings deterministically.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Ask builds the question for one missing entity. failureReason, when
// non-empty, is a validation rejection restated before re-asking. variant
// rotates among available phrasings (pass the re-ask count).
func (g *Generator) Ask(
	entity contractx.EntityType,
	intent contractx.Intent,
	collected map[contractx.EntityType]string,
	failureReason string,
	variant int,
) string {
	templates := intentTemplates[templateKey{intent: intent, entity: entity}]
	if len(templates) == 0 {
		templates = genericTemplates[entity]
	}
	if len(templates) == 0 {
		templates = []string{fmt.Sprintf("Could you tell me the %s?", label(entity))}
	}

	q := pick(templates, collected, variant)
	if reason := strings.TrimSpace(failureReason); reason != "" {
		return fmt.Sprintf("%s %s", ensureSentence(reason), q)
	}
	return q
}

// Confirmation summarizes every collected entity and asks for an explicit
// yes/no before agent execution.
func (g *Generator) Confirmation(intent contractx.Intent, collected map[contractx.EntityType]string) string {
	var b strings.Builder
	b.WriteString(actionPhrase(intent))

	if len(collected) > 0 {
		b.WriteString(" with these details:\n")
		for _, t := range sortedTypes(collected) {
			fmt.Fprintf(&b, "- %s: %s\n", label(t), collected[t])
		}
		b.WriteString("Shall I go ahead? (yes/no)")
	} else {
		b.WriteString(". Shall I go ahead? (yes/no)")
	}
	return b.String()
}

// Clarify is the generic question for an unclassifiable message.
func (g *Generator) Clarify() string {
	return "I can help with bookings, cancellations, complaints, pricing, and policy questions. What would you like to do?"
}

func pick(templates []string, collected map[contractx.EntityType]string, variant int) string {
	if variant < 0 {
		variant = 0
	}
	n := len(templates)
	for i := 0; i < n; i++ {
		candidate := templates[(variant+i)%n]
		if filled, ok := substitute(candidate, collected); ok {
			return filled
		}
	}
	// every phrasing referenced something not collected yet; strip instead
	filled, _ := substitute(templates[variant%n], nil)
	return filled
}

// substitute fills {entity_type} placeholders from collected values. ok is
// false when a referenced value is missing.
func substitute(template string, collected map[contractx.EntityType]string) (string, bool) {
	out := template
	ok := true
	for t, lbl := range entityLabels {
		placeholder := "{" + string(t) + "}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		value := ""
		if collected != nil {
			value = collected[t]
		}
		if value == "" {
			ok = false
			value = lbl
		}
		out = strings.ReplaceAll(out, placeholder, prettyValue(t, value))
	}
	return out, ok
}

func prettyValue(t contractx.EntityType, v string) string {
	if t == contractx.EntityServiceType {
		return strings.ReplaceAll(strings.ReplaceAll(v, "_", " "), "/", " / ")
	}
	return v
}

func actionPhrase(intent contractx.Intent) string {
	switch intent {
	case contractx.IntentBookingManagement:
		return "I'll book this"
	case contractx.IntentCancellation:
		return "I'll cancel this booking"
	case contractx.IntentComplaint:
		return "I'll register this complaint"
	default:
		return "I'll proceed"
	}
}

func sortedTypes(collected map[contractx.EntityType]string) []contractx.EntityType {
	types := make([]contractx.EntityType, 0, len(collected))
	for t := range collected {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func label(t contractx.EntityType) string {
	if l, ok := entityLabels[t]; ok {
		return l
	}
	return string(t)
}

func ensureSentence(s string) string {
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "!") {
		return s
	}
	return s + "."
}
