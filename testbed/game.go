package testbed

import (
	"github.com/spaghettifunk/foveal/engine"
	"github.com/spaghettifunk/foveal/engine/core"
)

var clearColor = [4]float32{0.02, 0.02, 0.04, 1.0}

// NewGame returns the sample selected by the configuration.
func NewGame(cfg *core.Config) (*engine.Game, error) {
	switch cfg.Application.Sample {
	case core.SampleTriangle:
		return NewTriangleGame(cfg).Game, nil
	case core.SampleVRS:
		return NewVRSGame(cfg).Game, nil
	}
	return nil, core.Errorf("unknown sample %q", cfg.Application.Sample)
}
