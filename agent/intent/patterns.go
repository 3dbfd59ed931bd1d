package intent

import (
	"regexp"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

type patternRule struct {
	re     *regexp.Regexp
	weight float64
}

// patternRules holds the fast keyword/regex tier. Weights are calibrated so
// a clean match on an unambiguous phrasing scores at least 0.9.
var patternRules = map[contractx.Intent][]patternRule{
	contractx.IntentGreeting: {
		{regexp.MustCompile(`(?i)^\s*(hi|hii+|hello|hey|namaste|good\s+(morning|afternoon|evening))[\s!.]*$`), 0.97},
		{regexp.MustCompile(`(?i)^\s*(thanks|thank you)[\s!.]*$`), 0.92},
	},
	contractx.IntentBookingManagement: {
		{regexp.MustCompile(`(?i)\b(book|schedule|arrange)\b`), 0.92},
		{regexp.MustCompile(`(?i)\b(need|want|looking for)\b.{0,30}\b(service|repair|cleaning|plumber|electrician|carpenter|painting|painter)\b`), 0.9},
		{regexp.MustCompile(`(?i)\breschedul\w+\b`), 0.9},
	},
	contractx.IntentBookingStatus: {
		{regexp.MustCompile(`(?i)\b(status|track|where is)\b.{0,30}\b(booking|order|request)\b`), 0.93},
		{regexp.MustCompile(`(?i)\bmy booking\b.{0,20}\b(status|update)\b`), 0.9},
	},
	contractx.IntentCancellation: {
		{regexp.MustCompile(`(?i)\bcancel\w*\b`), 0.93},
		{regexp.MustCompile(`(?i)\bcall\s+off\b`), 0.85},
	},
	contractx.IntentComplaint: {
		{regexp.MustCompile(`(?i)\b(complain\w*|grievance)\b`), 0.94},
		{regexp.MustCompile(`(?i)\b(unhappy|not satisfied|disappointed|terrible|pathetic|worst)\b`), 0.88},
		{regexp.MustCompile(`(?i)\b(issue|problem)\b.{0,30}\b(service|booking|technician|provider)\b`), 0.87},
	},
	contractx.IntentPricingInquiry: {
		{regexp.MustCompile(`(?i)\b(price|pricing|cost|charge|rate)s?\b`), 0.91},
		{regexp.MustCompile(`(?i)\bhow much\b`), 0.93},
	},
	contractx.IntentPolicyInquiry: {
		{regexp.MustCompile(`(?i)\b(policy|policies|terms)\b`), 0.93},
		{regexp.MustCompile(`(?i)\brefund\w*\b`), 0.9},
		{regexp.MustCompile(`(?i)\b(guarantee|warranty)\b`), 0.88},
	},
	contractx.IntentServiceInquiry: {
		{regexp.MustCompile(`(?i)\bwhat services\b`), 0.93},
		{regexp.MustCompile(`(?i)\bdo you (offer|provide|have)\b`), 0.88},
		{regexp.MustCompile(`(?i)\bservices? available\b`), 0.9},
	},
	contractx.IntentDataQuery: {
		{regexp.MustCompile(`(?i)\bhow many\b.{0,40}\b(booking|complaint|provider|order)s?\b`), 0.92},
		{regexp.MustCompile(`(?i)\b(report|summary|total|average)\b.{0,40}\b(booking|complaint|provider|revenue)s?\b`), 0.9},
	},
}

// requiredEntities is each intent's slot list, in asking order. A pincode
// is validated and kept whenever the user offers one, but booking does not
// demand it up front; address capture belongs to the booking agent.
var requiredEntities = map[contractx.Intent][]contractx.EntityType{
	contractx.IntentBookingManagement: {
		contractx.EntityServiceType,
		contractx.EntityDate,
		contractx.EntityTime,
	},
	contractx.IntentBookingStatus: {contractx.EntityBookingID},
	contractx.IntentCancellation:  {contractx.EntityBookingID},
	contractx.IntentComplaint:     {contractx.EntityBookingID},
	contractx.IntentPricingInquiry: {
		contractx.EntityServiceType,
	},
}

// confirmationExempt intents execute as soon as their slots are filled;
// read-only inquiries don't warrant a yes/no gate.
var confirmationExempt = map[contractx.Intent]bool{
	contractx.IntentPricingInquiry: true,
	contractx.IntentPolicyInquiry:  true,
	contractx.IntentServiceInquiry: true,
	contractx.IntentDataQuery:      true,
	contractx.IntentBookingStatus:  true,
	contractx.IntentGreeting:       true,
}

// RequiredEntities returns the slot list for an intent, nil when it needs
// nothing beyond the message itself.
func RequiredEntities(i contractx.Intent) []contractx.EntityType {
	return requiredEntities[i]
}

// NeedsConfirmation reports whether an intent requires an explicit yes/no
// before agent execution.
func NeedsConfirmation(i contractx.Intent) bool {
	return !confirmationExempt[i]
}
