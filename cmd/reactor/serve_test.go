package main

import (
	"io"
	"testing"
)

func TestEngineIgnoresScenarioBudget(t *testing.T) {
	dir := t.TempDir()
	a, err := newApp(&globalFlags{configPath: writeConfig(t, dir), logLevel: "error"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	a.cfg.Scheduler.MaxJobsPerFlush = 1
	a.cfg.Scheduler.MaxJobsPerSecond = 1
	a.cfg.Scheduler.OnExceeded = "trip"

	engine := newEngine(a)
	ran := 0
	for i := 0; i < 5; i++ {
		if !engine.Post("snapshot", func() { ran++ }) {
			t.Fatalf("post %d refused", i)
		}
	}
	if err := engine.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ran != 5 {
		t.Errorf("expected 5 control jobs to run, got %d", ran)
	}
	if engine.Tripped() {
		t.Error("engine queue must never trip")
	}
	if !engine.Post("scenarios", func() {}) {
		t.Error("engine should keep accepting work")
	}
}
