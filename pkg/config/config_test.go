package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.NearestNeighbors != 5 {
		t.Errorf("nearestNeighbors = %d, want 5", cfg.Engine.NearestNeighbors)
	}
	if cfg.Engine.NumOfRecsStore != 30 {
		t.Errorf("numOfRecsStore = %d, want 30", cfg.Engine.NumOfRecsStore)
	}
	if cfg.Engine.SimilarityTTL != 72*time.Hour {
		t.Errorf("similarityTTL = %v, want 72h", cfg.Engine.SimilarityTTL)
	}
	if cfg.Engine.FactorLeastSimilar {
		t.Error("factorLeastSimilar should default to false")
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yamlDoc := `
engine:
  className: movie
  nearestNeighbors: 10
  factorLeastSimilar: true
  tempSetTTL: 45s
redis:
  addr: redis:6379
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RE_ENGINE_NUM_OF_RECS_STORE", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ClassName != "movie" {
		t.Errorf("className = %q, want movie", cfg.Engine.ClassName)
	}
	if cfg.Engine.NearestNeighbors != 10 {
		t.Errorf("nearestNeighbors = %d, want 10", cfg.Engine.NearestNeighbors)
	}
	if !cfg.Engine.FactorLeastSimilar {
		t.Error("factorLeastSimilar = false, want true")
	}
	if cfg.Engine.TempSetTTL != 45*time.Second {
		t.Errorf("tempSetTTL = %v, want 45s", cfg.Engine.TempSetTTL)
	}
	if cfg.Engine.NumOfRecsStore != 12 {
		t.Errorf("numOfRecsStore = %d, want 12 from env", cfg.Engine.NumOfRecsStore)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	// untouched sections keep defaults
	if cfg.Engine.SimilarityTTL != 72*time.Hour {
		t.Errorf("similarityTTL = %v, want default", cfg.Engine.SimilarityTTL)
	}
}

func TestEngineValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr bool
	}{
		{"defaults", func(*EngineConfig) {}, false},
		{"zero neighbours", func(e *EngineConfig) { e.NearestNeighbors = 0 }, true},
		{"zero cap", func(e *EngineConfig) { e.NumOfRecsStore = 0 }, true},
		{"empty class", func(e *EngineConfig) { e.ClassName = "" }, true},
		{"negative ttl", func(e *EngineConfig) { e.TempSetTTL = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DefaultEngine()
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDevelopmentConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ClassName != "movie" {
		t.Errorf("className = %q, want movie", cfg.Engine.ClassName)
	}
	if cfg.Worker.RetryAttempts != 4 || cfg.Worker.RetryInitialDelay != 200*time.Millisecond {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if !cfg.Postgres.Enabled {
		t.Error("development config should enable the event log")
	}
}
