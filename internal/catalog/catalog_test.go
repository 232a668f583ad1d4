package catalog

import (
	"strings"
	"testing"
)

func TestDefault_RegistersEveryType(t *testing.T) {
	reg := Default()
	want := []string{
		"lichen.schema.messages.HumanMessage",
		"lichen.schema.messages.AIMessage",
		"lichen.schema.messages.SystemMessage",
		"lichen.schema.messages.ChatMessage",
		"lichen.memory.chat_message_histories.InMemoryHistory",
		"lichen.tokens.WordEstimator",
		"lichen.prompts.prompt.PromptTemplate",
		"lichen.llms.anthropic.Anthropic",
		"lichen.memory.summary.LLMSummarizer",
		"lichen.memory.buffer.ConversationBufferMemory",
		"lichen.memory.buffer_window.ConversationBufferWindowMemory",
		"lichen.memory.token_buffer.ConversationTokenBufferMemory",
		"lichen.memory.summary_buffer.ConversationSummaryBufferMemory",
	}
	for _, path := range want {
		if !reg.Has(strings.Split(path, ".")) {
			t.Errorf("registry missing %s", path)
		}
	}
	if got := len(reg.Paths()); got != len(want) {
		t.Errorf("len(Paths()) = %d, want %d", got, len(want))
	}
}

func TestDefault_IsShared(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() returned different registries")
	}
}
