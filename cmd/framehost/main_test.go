package main

import (
	"log/slog"
	"testing"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.options.FramesInFlight != 2 {
		t.Errorf("frames in flight = %d, want 2", cfg.options.FramesInFlight)
	}
	if !cfg.options.NearestFilter || !cfg.options.PreserveAspect {
		t.Error("expected nearest filtering and preserved aspect by default")
	}
	if cfg.logLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.logLevel)
	}
	if cfg.options.ClearColor != [4]float32{0, 0, 0, 1} {
		t.Errorf("clear color = %v", cfg.options.ClearColor)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-frames", "3",
		"-linear",
		"-stretch",
		"-validation",
		"-clear", "0.5, 0.25, 0, 1",
		"-log-level", "debug",
		"-title", "emu",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.options.FramesInFlight != 3 {
		t.Errorf("frames in flight = %d, want 3", cfg.options.FramesInFlight)
	}
	if cfg.options.NearestFilter || cfg.options.PreserveAspect {
		t.Error("expected linear filtering and stretching")
	}
	if !cfg.options.EnableValidation {
		t.Error("expected validation enabled")
	}
	if cfg.options.ClearColor != [4]float32{0.5, 0.25, 0, 1} {
		t.Errorf("clear color = %v", cfg.options.ClearColor)
	}
	if cfg.logLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.logLevel)
	}
	if cfg.options.AppName != "emu" {
		t.Errorf("app name = %q, want emu", cfg.options.AppName)
	}
}

func TestParseFlagsRejectsBadValues(t *testing.T) {
	tests := [][]string{
		{"-clear", "1,2,3"},
		{"-clear", "a,b,c,d"},
		{"-log-level", "loud"},
		{"-width", "0"},
		{"-pattern-width", "-1"},
		{"-frames", "many"},
	}
	for _, args := range tests {
		if _, err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%q) succeeded, want an error", args)
		}
	}
}
