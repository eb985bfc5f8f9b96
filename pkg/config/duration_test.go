package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshal(t *testing.T) {
	var out struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 1m30s\nb: 5000000000"), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.A.Std() != 90*time.Second {
		t.Fatalf("a = %v, want 1m30s", out.A.Std())
	}
	if out.B.Std() != 5*time.Second {
		t.Fatalf("b = %v, want 5s from nanoseconds", out.B.Std())
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	var out struct {
		A Duration `yaml:"a"`
	}
	if err := yaml.Unmarshal([]byte("a: shortly"), &out); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
