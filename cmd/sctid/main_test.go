package main

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
)

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"admin-secret":      "SCTID_ADMIN_SECRET",
		"bind":              "SCTID_BIND",
		"reservations-file": "SCTID_RESERVATIONS_FILE",
	}
	for flag, want := range tests {
		if got := envName(flag); got != want {
			t.Errorf("envName(%q) = %q, want %q", flag, got, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bind := fs.String("bind", ":8080", "")
	attempts := fs.Int("max-attempts", 1000, "")
	store := fs.String("store", "pebble", "")
	if err := fs.Parse([]string{"--store", "badger"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	t.Setenv("SCTID_BIND", ":9090")
	t.Setenv("SCTID_MAX_ATTEMPTS", "5")
	t.Setenv("SCTID_STORE", "sqlite")
	if err := applyEnv(fs); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if *bind != ":9090" {
		t.Errorf("bind = %q, want :9090", *bind)
	}
	if *attempts != 5 {
		t.Errorf("max-attempts = %d, want 5", *attempts)
	}
	if *store != "badger" {
		t.Errorf("store = %q, want the explicit flag to win", *store)
	}

	t.Setenv("SCTID_MAX_ATTEMPTS", "many")
	fs2 := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs2.Int("max-attempts", 1000, "")
	err := applyEnv(fs2)
	if err == nil || !strings.Contains(err.Error(), "SCTID_MAX_ATTEMPTS") {
		t.Errorf("applyEnv err = %v, want invalid SCTID_MAX_ATTEMPTS", err)
	}
}

func TestReadIDs(t *testing.T) {
	ids, err := readIDs([]string{"100005", "101009"}, nil)
	if err != nil || len(ids) != 2 {
		t.Fatalf("readIDs(args) = %v, %v", ids, err)
	}
	ids, err = readIDs([]string{"-"}, strings.NewReader("100005\n\n  101009 \n"))
	if err != nil {
		t.Fatalf("readIDs(stdin): %v", err)
	}
	if len(ids) != 2 || ids[1] != "101009" {
		t.Errorf("ids = %v", ids)
	}
	if _, err := readIDs([]string{"-"}, strings.NewReader("\n")); err == nil {
		t.Error("expected error for empty stdin")
	}
}

func TestToClientReservation(t *testing.T) {
	r := reservation.Range{
		Name:       "ext",
		LowerBound: 1,
		UpperBound: 99,
		Namespace:  reservation.Namespaced("1000129"),
		Categories: []sctid.Category{sctid.Concept, sctid.Relationship},
	}
	got := toClientReservation(r)
	if got.Name != "ext" || got.UpperBound != 99 || *got.Namespace != "1000129" {
		t.Errorf("reservation = %+v", got)
	}
	if strings.Join(got.Categories, ",") != "CONCEPT,RELATIONSHIP" {
		t.Errorf("categories = %v", got.Categories)
	}
}

func TestNamespaceLabel(t *testing.T) {
	intl := ""
	ext := "1000129"
	if got := namespaceLabel(nil); got != "*" {
		t.Errorf("nil = %q", got)
	}
	if got := namespaceLabel(&intl); got != "INT" {
		t.Errorf("international = %q", got)
	}
	if got := namespaceLabel(&ext); got != ext {
		t.Errorf("extension = %q", got)
	}
}
