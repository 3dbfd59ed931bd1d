package prompt

import (
	"testing"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

func TestLoadPromptSetCoversRoutableIntents(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if set.Classifier == "" {
		t.Fatal("classifier prompt is empty")
	}
	if set.Extractor == "" {
		t.Fatal("extractor prompt is empty")
	}

	for _, intent := range contractx.KnownIntents {
		if intent == contractx.IntentGreeting || intent == contractx.IntentUnclear {
			continue
		}
		if set.Agents[intent] == "" {
			t.Fatalf("no prompt for intent %s", intent)
		}
	}
}
