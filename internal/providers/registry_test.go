package providers

import (
	"reflect"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Get("anthropic"); err == nil {
		t.Fatal("expected error from empty registry")
	}

	reg.Register(NewAnthropicProvider("key-a"))
	reg.Register(NewZhipuProvider("key-z", "", ""))
	reg.Register(NewOpenAIProvider("openai", "key-o", "", "gpt-4o"))

	p, err := reg.Get("zhipu")
	if err != nil {
		t.Fatalf("Get(zhipu): %v", err)
	}
	if p.Name() != "zhipu" {
		t.Fatalf("got provider %q, want zhipu", p.Name())
	}

	want := []string{"anthropic", "openai", "zhipu"}
	if got := reg.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}

	_, err = reg.Get("mistral")
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
	if !strings.Contains(err.Error(), "anthropic") {
		t.Fatalf("error should list available providers, got: %v", err)
	}

	reg.Unregister("openai")
	if _, err := reg.Get("openai"); err == nil {
		t.Fatal("expected error after Unregister")
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewOpenAIProvider("openai", "old", "", "gpt-4o"))
	reg.Register(NewOpenAIProvider("openai", "new", "", "gpt-4.1"))

	p, err := reg.Get("openai")
	if err != nil {
		t.Fatalf("Get(openai): %v", err)
	}
	if p.DefaultModel() != "gpt-4.1" {
		t.Fatalf("default model = %q, want the replacement registration", p.DefaultModel())
	}
	if got := reg.List(); len(got) != 1 {
		t.Fatalf("List() = %v, want a single entry", got)
	}
}
