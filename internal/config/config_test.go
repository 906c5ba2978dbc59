package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 7946}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_Drivers(t *testing.T) {
	tests := []struct {
		driver  string
		addrs   []string
		wantErr bool
	}{
		{DriverMemory, nil, false},
		{DriverRedis, []string{"localhost:6379"}, false},
		{DriverValkey, []string{"localhost:6379"}, false},
		{DriverRedis, nil, true},
		{DriverValkey, nil, true},
		{"postgres", []string{"localhost:5432"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.driver, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database.Driver = tc.driver
			cfg.Database.Addrs = tc.addrs

			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_Node(t *testing.T) {
	cfg := validConfig()
	cfg.Node.Partitioner = "rendezvous"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown partitioner")
	}

	cfg = validConfig()
	th := 1.5
	cfg.Node.GoodDealThreshold = &th
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for threshold > 1")
	}

	cfg = validConfig()
	cfg.Node.Peers = []string{"10.0.0.1:7946", " "}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for blank peer")
	}

	cfg = validConfig()
	cfg.Node.TagRetentionSec = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative retention")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{HTTP: HTTPConfig{Port: 7946}}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.WriteTimeoutSec != 10 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("expected memory driver, got %s", cfg.Database.Driver)
	}
	if cfg.Node.Address != "127.0.0.1:7946" {
		t.Errorf("unexpected address: %s", cfg.Node.Address)
	}
	if cfg.Node.TTL != 10 || *cfg.Node.ReplicationBudget != 10 {
		t.Errorf("unexpected protocol defaults: ttl=%d budget=%v", cfg.Node.TTL, *cfg.Node.ReplicationBudget)
	}
	if cfg.Node.Partitioner != "modulo" || cfg.Node.Parallelism != 1 || cfg.Node.HopTimeoutMs != 2000 {
		t.Errorf("unexpected node defaults: %+v", cfg.Node)
	}
	if *cfg.Node.GoodDealThreshold != 0.5 {
		t.Errorf("unexpected threshold: %v", *cfg.Node.GoodDealThreshold)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	budget := -1.0
	cfg := Config{
		HTTP:     HTTPConfig{Port: 7946, ReadTimeoutSec: 30},
		Database: DatabaseConfig{Driver: DriverRedis, Addrs: []string{"r:6379"}},
		Node:     NodeConfig{Address: "node-a:7946", TTL: 3, ReplicationBudget: &budget},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 || cfg.Database.Driver != DriverRedis || cfg.Node.Address != "node-a:7946" {
		t.Errorf("explicit values were overridden: %+v", cfg)
	}
	if cfg.Node.TTL != 3 || *cfg.Node.ReplicationBudget != -1 {
		t.Errorf("explicit protocol values were overridden: %+v", cfg.Node)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("SYNAPSE_PORT", "9000")
	t.Setenv("SYNAPSE_PEERS_A", "10.0.0.1:9000")

	cfg, err := Parse([]byte(`
http:
  port: ${SYNAPSE_PORT}
node:
  address: ${SYNAPSE_ADDRESS:-10.0.0.9:9000}
  peers:
    - ${SYNAPSE_PEERS_A}
  tag_retention_sec: 300
  hop_timeout_ms: 150
  partitioner: ring
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 || cfg.Node.Address != "10.0.0.9:9000" || cfg.Node.Peers[0] != "10.0.0.1:9000" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	p := cfg.Node.Protocol()
	if p.TagRetention != 5*time.Minute || p.HopTimeout != 150*time.Millisecond {
		t.Errorf("unexpected protocol config: %+v", p)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected yaml error")
	}
	if _, err := Parse([]byte("http:\n  port: 0\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_Local(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port == 0 {
		t.Error("expected port from config/local.yaml")
	}
}
