package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"corsair/internal/config"
	"corsair/internal/domain"
)

func TestDefaultTemplateIsValid(t *testing.T) {
	cfg := config.Default()
	if cfg.Worker.BaseURL == "" {
		t.Fatalf("default config missing worker base url")
	}
	if cfg.Dispatch.TimeoutSeconds != config.DefaultTimeoutSeconds {
		t.Fatalf("expected default timeout %d, got %d", config.DefaultTimeoutSeconds, cfg.Dispatch.TimeoutSeconds)
	}
	if len(cfg.World.Layers) != 3 {
		t.Fatalf("expected 3 default layers, got %d", len(cfg.World.Layers))
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "corsair.yml"), []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.World.Layers[0].Name != "Tortuga Shallows" {
		t.Fatalf("unexpected first layer %q", cfg.World.Layers[0].Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "csr config init") {
		t.Fatalf("expected hint to generate config, got %v", err)
	}
	cfg, err := config.LoadOptional(t.TempDir())
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil from optional load, got %v, %v", cfg, err)
	}
}

func TestApplyDefaultsFillsTuningKnobs(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`worker:
  base_url: http://localhost:8080/v0
world:
  layers:
    - id: 1
      name: Solo Reef
      missions:
        - id: m-1
          name: Test Run
          kind: Events
          path: events/test-run
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Dispatch.TimeoutSeconds != config.DefaultTimeoutSeconds {
		t.Fatalf("expected timeout default, got %d", cfg.Dispatch.TimeoutSeconds)
	}
	if cfg.Reads.RetryAttempts != config.DefaultRetryAttempts || cfg.Reads.RetryDelayMS != config.DefaultRetryDelayMS {
		t.Fatalf("expected read retry defaults, got %+v", cfg.Reads)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing base url",
			yaml: "world:\n  layers:\n    - id: 1\n      name: L\n      missions: []\n",
			want: "base_url",
		},
		{
			name: "no layers",
			yaml: "worker:\n  base_url: http://x\n",
			want: "layers",
		},
		{
			name: "duplicate layer id",
			yaml: "worker:\n  base_url: http://x\nworld:\n  layers:\n    - id: 1\n      name: A\n      missions: []\n    - id: 1\n      name: B\n      missions: []\n",
			want: "duplicate layer id",
		},
		{
			name: "unknown kind",
			yaml: "worker:\n  base_url: http://x\nworld:\n  layers:\n    - id: 1\n      name: A\n      missions:\n        - id: m\n          name: M\n          kind: Bogus\n          path: bogus/m\n",
			want: "unknown kind",
		},
		{
			name: "missing path",
			yaml: "worker:\n  base_url: http://x\nworld:\n  layers:\n    - id: 1\n      name: A\n      missions:\n        - id: m\n          name: M\n          kind: Events\n",
			want: "empty path",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultLayerKindsMatchWorldDepth(t *testing.T) {
	cfg := config.Default()
	kindsByLayer := map[int]map[domain.MissionKind]bool{}
	for _, layer := range cfg.World.Layers {
		kinds := map[domain.MissionKind]bool{}
		for _, m := range layer.Missions {
			kinds[m.Kind] = true
		}
		kindsByLayer[layer.ID] = kinds
	}
	if !kindsByLayer[1][domain.KindEvents] || len(kindsByLayer[1]) != 1 {
		t.Fatalf("layer 1 should carry events only, got %v", kindsByLayer[1])
	}
	if !kindsByLayer[2][domain.KindPlunders] {
		t.Fatalf("layer 2 should carry plunders, got %v", kindsByLayer[2])
	}
	if !kindsByLayer[3][domain.KindBurners] || !kindsByLayer[3][domain.KindSpecials] {
		t.Fatalf("layer 3 should carry burners and specials, got %v", kindsByLayer[3])
	}
}
