package llm

import "testing"

func TestCreateClient(t *testing.T) {
	f := &Factory{OpenAIAPIKey: "sk-test", AnthropicAPIKey: "ak-test"}

	for _, provider := range []string{"openai", "OpenAI", "anthropic", "ANTHROPIC"} {
		c, err := f.CreateClient(provider, "some-model")
		if err != nil {
			t.Fatalf("CreateClient(%q): %v", provider, err)
		}
		if c == nil {
			t.Fatalf("CreateClient(%q) returned nil client", provider)
		}
	}

	if _, err := f.CreateClient("yandex", "some-model"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
