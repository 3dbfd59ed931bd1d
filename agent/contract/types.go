package contract

// Intent is the classified purpose of a user message, drawn from a closed set.
type Intent string

const (
	IntentBookingManagement Intent = "booking_management"
	IntentBookingStatus     Intent = "booking_status"
	IntentCancellation      Intent = "cancellation"
	IntentComplaint         Intent = "complaint"
	IntentPricingInquiry    Intent = "pricing_inquiry"
	IntentPolicyInquiry     Intent = "policy_inquiry"
	IntentServiceInquiry    Intent = "service_inquiry"
	IntentDataQuery         Intent = "data_query"
	IntentGreeting          Intent = "greeting"
	IntentUnclear           Intent = "unclear_intent"
)

// KnownIntents lists every routable intent in stable order. The order is
// also the tie-break used when merging multi-intent responses.
var KnownIntents = []Intent{
	IntentBookingManagement,
	IntentBookingStatus,
	IntentCancellation,
	IntentComplaint,
	IntentPricingInquiry,
	IntentPolicyInquiry,
	IntentServiceInquiry,
	IntentDataQuery,
	IntentGreeting,
	IntentUnclear,
}

func (i Intent) Known() bool {
	for _, k := range KnownIntents {
		if k == i {
			return true
		}
	}
	return false
}

// EntityType identifies a typed slot value extracted from text.
type EntityType string

const (
	EntityServiceType EntityType = "service_type"
	EntityDate        EntityType = "date"
	EntityTime        EntityType = "time"
	EntityPincode     EntityType = "pincode"
	EntityAmount      EntityType = "amount"
	EntityBookingID   EntityType = "booking_id"
)

// Method tags how a classification or extraction result was produced.
type Method string

const (
	MethodPattern  Method = "pattern"
	MethodLLM      Method = "llm"
	MethodFallback Method = "fallback"
)

// IntentResult is one classified intent for a user turn. A single turn may
// yield several of these (multi-intent messages).
type IntentResult struct {
	Intent     Intent                `json:"intent"`
	Confidence float64               `json:"confidence"`
	Entities   map[EntityType]string `json:"entities,omitempty"`
	Method     Method                `json:"method"`
}

// ExtractionResult is the outcome of pulling one typed value out of free
// text. NormalizedValue stays empty until validation has run.
type ExtractionResult struct {
	EntityType      EntityType `json:"entity_type"`
	RawValue        string     `json:"raw_value"`
	NormalizedValue string     `json:"normalized_value,omitempty"`
	Method          Method     `json:"method"`
	Confidence      float64    `json:"confidence"`
}

func (r ExtractionResult) Empty() bool {
	return r.RawValue == "" && r.NormalizedValue == ""
}

// ValidationResult carries either the canonical form of a value or a
// human-readable rejection reason, never both.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// DependentIntent is an intent annotated with the prerequisites that must
// resolve before it may run.
type DependentIntent struct {
	Result    IntentResult `json:"result"`
	DependsOn []Intent     `json:"depends_on"`
}

// ExecutionPlan partitions one turn's intents into a concurrent phase and
// an ordered dependent phase. Every prerequisite of a dependent intent is
// present either in Independent or earlier in Dependent.
type ExecutionPlan struct {
	Independent []IntentResult    `json:"independent"`
	Dependent   []DependentIntent `json:"dependent"`
}

func (p ExecutionPlan) Size() int {
	return len(p.Independent) + len(p.Dependent)
}

// AgentRequest is the uniform input every specialist agent receives.
// Context carries metadata accumulated from prerequisite agents during the
// sequential phase.
type AgentRequest struct {
	Message   string                `json:"message"`
	UserID    string                `json:"user_id"`
	SessionID string                `json:"session_id"`
	Intent    Intent                `json:"intent"`
	Entities  map[EntityType]string `json:"entities,omitempty"`
	Context   map[string]any        `json:"context,omitempty"`
}

// AgentResponse is one agent's contribution to a merged reply plus its
// provenance record.
type AgentResponse struct {
	AgentName    string         `json:"agent_name"`
	Intent       Intent         `json:"intent"`
	Contribution string         `json:"contribution"`
	ActionTaken  string         `json:"action_taken,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ElapsedMS    int64          `json:"execution_time_ms"`
	OrderIndex   int            `json:"order_index"`
	Succeeded    bool           `json:"succeeded"`
	Error        string         `json:"error,omitempty"`
}

// TurnResponse is what the Coordinator hands back to the caller for every
// message, well-formed even when everything downstream failed.
type TurnResponse struct {
	Reply                string          `json:"response"`
	Intent               Intent          `json:"intent"`
	Confidence           float64         `json:"confidence"`
	AwaitingConfirmation bool            `json:"awaiting_confirmation"`
	AgentsUsed           []string        `json:"agents_used,omitempty"`
	Provenance           []AgentResponse `json:"provenance,omitempty"`
}
