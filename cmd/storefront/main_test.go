package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	prevLevel := log.GetLevel()
	prevFormatter := log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(prevLevel)
		log.SetFormatter(prevFormatter)
	})

	if err := setupLogger("debug", "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.StandardLogger().Formatter)
	}

	if err := setupLogger(" WARN ", "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", log.StandardLogger().Formatter)
	}
}

func TestSetupLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	prevLevel := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prevLevel) })

	if err := setupLogger("verbose", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}
