package question

import (
	"strings"
	"testing"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

func TestAskUsesCollectedValues(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	q := g.Ask(contractx.EntityDate, contractx.IntentBookingManagement,
		map[contractx.EntityType]string{contractx.EntityServiceType: "ac_service"}, "", 0)

	if !strings.Contains(q, "ac service") {
		t.Fatalf("question should mention the chosen service, got %q", q)
	}
}

func TestAskSkipsTemplatesMissingValues(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	// no service collected yet: the {service_type} phrasings must be skipped
	q := g.Ask(contractx.EntityDate, contractx.IntentBookingManagement, nil, "", 0)

	if strings.Contains(q, "{") {
		t.Fatalf("unfilled placeholder leaked: %q", q)
	}
	if q != "Which date works for you?" {
		t.Fatalf("unexpected question %q", q)
	}
}

func TestAskRestatesFailureReason(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	q := g.Ask(contractx.EntityDate, contractx.IntentBookingManagement, nil,
		"2025-06-01 is a past date", 0)

	if !strings.HasPrefix(q, "2025-06-01 is a past date.") {
		t.Fatalf("reason not restated first: %q", q)
	}
}

func TestAskVariantRotates(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	collected := map[contractx.EntityType]string{contractx.EntityServiceType: "plumbing"}

	first := g.Ask(contractx.EntityDate, contractx.IntentBookingManagement, collected, "", 0)
	second := g.Ask(contractx.EntityDate, contractx.IntentBookingManagement, collected, "", 1)
	if first == second {
		t.Fatalf("variants should differ, both were %q", first)
	}
}

func TestAskFallsBackToGeneric(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	q := g.Ask(contractx.EntityAmount, contractx.IntentBookingManagement, nil, "", 0)
	if q != "What amount should I note down?" {
		t.Fatalf("unexpected generic question %q", q)
	}
}

func TestConfirmationListsEveryEntity(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	q := g.Confirmation(contractx.IntentBookingManagement, map[contractx.EntityType]string{
		contractx.EntityServiceType: "ac_service",
		contractx.EntityDate:        "2025-06-12",
		contractx.EntityTime:        "15:00",
		contractx.EntityPincode:     "110001",
	})

	for _, want := range []string{"ac_service", "2025-06-12", "15:00", "110001", "(yes/no)"} {
		if !strings.Contains(q, want) {
			t.Fatalf("confirmation missing %q: %q", want, q)
		}
	}
}

func TestClarifyNamesCapabilities(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	if !strings.Contains(g.Clarify(), "bookings") {
		t.Fatalf("clarify prompt should name capabilities, got %q", g.Clarify())
	}
}
