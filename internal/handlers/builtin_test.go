package handlers

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/mattjoyce/hookgate/internal/router"
)

func TestRegisterBuiltins(t *testing.T) {
	reg := router.NewRegistry()
	RegisterBuiltins(reg)

	want := []string{"github", "gitlab", "jira"}
	if got := reg.Services(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Services() = %v, want %v", got, want)
	}

	result, err := reg.Dispatch(context.Background(), "github",
		json.RawMessage(`{"event":"push","ref":"main"}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map", result)
	}
	if m["acknowledged"] != true || m["source"] != "github" || m["fields"] != 2 {
		t.Errorf("result = %v", m)
	}
}
