package telemetry

import (
	"testing"

	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/world"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Colony.Bees = 10
	cfg.Flowers.Count = 4
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	return w
}
