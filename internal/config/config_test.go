package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	// No config file anywhere: defaults apply.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.VLM.Model != "gpt-4o" || cfg.VLM.FallbackModel != "gpt-4o-mini" {
		t.Errorf("vlm models = %s/%s", cfg.VLM.Model, cfg.VLM.FallbackModel)
	}
	if cfg.VLM.RequestTimeout != 120*time.Second {
		t.Errorf("vlm.request_timeout = %s", cfg.VLM.RequestTimeout)
	}
	if cfg.Discord.ConnectTimeout != 30*time.Second {
		t.Errorf("discord.connect_timeout = %s", cfg.Discord.ConnectTimeout)
	}
	if cfg.Discord.PromptTimeout != 4*time.Minute {
		t.Errorf("discord.prompt_timeout = %s", cfg.Discord.PromptTimeout)
	}
	if cfg.Discord.PromptDelay != time.Second {
		t.Errorf("discord.prompt_delay = %s", cfg.Discord.PromptDelay)
	}
	if cfg.Batch.MaxItems != 30 || cfg.Batch.ItemDelay != 500*time.Millisecond {
		t.Errorf("batch = %d/%s", cfg.Batch.MaxItems, cfg.Batch.ItemDelay)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("database.driver = %s", cfg.Database.Driver)
	}
	if cfg.Storage.Enabled() {
		t.Error("storage should be disabled by default")
	}
}

func TestDatabaseDSN(t *testing.T) {
	pg := &DatabaseConfig{
		Driver: "postgres", Host: "db.local", Port: 5432,
		User: "app", Password: "secret", Name: "stylegen", SSLMode: "disable",
	}
	want := "host=db.local port=5432 user=app password=secret dbname=stylegen sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("postgres DSN = %q", got)
	}

	lite := &DatabaseConfig{Driver: "sqlite", Path: "./data/app.db"}
	if got := lite.DSN(); got != "./data/app.db" {
		t.Errorf("sqlite DSN = %q", got)
	}
}
