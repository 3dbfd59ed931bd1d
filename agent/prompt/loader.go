package prompt

import (
	_ "embed"
	"strings"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/extractor.txt
	extractorRaw string

	//go:embed template/booking.txt
	bookingRaw string

	//go:embed template/policy.txt
	policyRaw string

	//go:embed template/complaint.txt
	complaintRaw string

	//go:embed template/cancellation.txt
	cancellationRaw string

	//go:embed template/sqlquery.txt
	sqlQueryRaw string

	//go:embed template/servicecatalog.txt
	serviceCatalogRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Classifier string
	Extractor  string
	Agents     map[contractx.Intent]string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings. The embed
// is compile-time, so this is safe to call concurrently.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
		Extractor:  strings.TrimSpace(extractorRaw),
		Agents: map[contractx.Intent]string{
			contractx.IntentBookingManagement: strings.TrimSpace(bookingRaw),
			contractx.IntentBookingStatus:     strings.TrimSpace(bookingRaw),
			contractx.IntentPolicyInquiry:     strings.TrimSpace(policyRaw),
			contractx.IntentComplaint:         strings.TrimSpace(complaintRaw),
			contractx.IntentCancellation:      strings.TrimSpace(cancellationRaw),
			contractx.IntentDataQuery:         strings.TrimSpace(sqlQueryRaw),
			contractx.IntentPricingInquiry:    strings.TrimSpace(serviceCatalogRaw),
			contractx.IntentServiceInquiry:    strings.TrimSpace(serviceCatalogRaw),
		},
	}
}
