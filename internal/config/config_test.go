package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("TOSS_SECRET_KEY", "test_sk")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StepTimeout != 10*time.Second || cfg.RetryAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LockTTL != 120*time.Second {
		t.Fatalf("lock ttl=%s", cfg.LockTTL)
	}
	if cfg.Brokers() != nil {
		t.Fatalf("brokers should be empty, got %v", cfg.Brokers())
	}
}

func TestLoad_RequiresGatewaySecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("PAYMENT_GATEWAY", "stripe")
	t.Setenv("STRIPE_SECRET_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without STRIPE_SECRET_KEY")
	}
}

func TestBrokers_Split(t *testing.T) {
	c := Config{KafkaBrokers: "k1:9092, k2:9092,,"}
	got := c.Brokers()
	if len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Fatalf("brokers=%v", got)
	}
}
