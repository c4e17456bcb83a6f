package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateConfig_RequiresToken(t *testing.T) {
	cfg := DefaultConfig()

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatalf("expected missing token error")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if verrs[0].Field != "telegram.token" {
		t.Fatalf("expected telegram.token error, got %+v", verrs)
	}

	if err := ValidateOffline(cfg); err != nil {
		t.Fatalf("offline validation should accept missing token: %v", err)
	}
}

func TestValidate_LabelPlaceholders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telegram.Token = "t"
	cfg.Labels.ParamChanged = "saved %s"
	cfg.Labels.ButtonChosen = "done"

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatalf("expected placeholder errors")
	}
	msg := err.Error()
	for _, field := range []string{"labels.param_changed", "labels.button_chosen"} {
		if !strings.Contains(msg, field) {
			t.Fatalf("expected %s in %q", field, msg)
		}
	}
}

func TestValidate_RedisAndMetricsOnlyWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Addr = "not-an-address"
	cfg.Metrics.Listen = "nope"
	if err := ValidateOffline(cfg); err != nil {
		t.Fatalf("disabled sections must not be validated: %v", err)
	}

	cfg.Redis.Enabled = true
	cfg.Metrics.Enabled = true
	err := ValidateOffline(cfg)
	if err == nil {
		t.Fatalf("expected errors for enabled sections")
	}
	if !strings.Contains(err.Error(), "redis.addr") || !strings.Contains(err.Error(), "metrics.listen") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger.Level = "chatty"
	if err := ValidateOffline(cfg); err == nil || !strings.Contains(err.Error(), "logger.level") {
		t.Fatalf("expected logger.level error, got %v", err)
	}
}

func TestValidate_EmptyLabelsReportedInFieldOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Labels.CommandFailed = ""
	cfg.Labels.Start = " "
	cfg.Labels.SetUsage = ""
	cfg.Labels.Help = ""

	want := []string{"labels.start", "labels.help", "labels.set_usage", "labels.command_failed"}
	for i := 0; i < 5; i++ {
		err := ValidateOffline(cfg)
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("expected ValidationErrors, got %v", err)
		}
		if len(verrs) != len(want) {
			t.Fatalf("expected %d errors, got %v", len(want), verrs)
		}
		for j, field := range want {
			if verrs[j].Field != field {
				t.Fatalf("run %d: expected %s at %d, got %s", i, field, j, verrs[j].Field)
			}
		}
	}
}
