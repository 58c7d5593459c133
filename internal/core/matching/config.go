package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// Transform maps a raw similarity at or above the floor into [0,1].
type Transform string

const (
	TransformLinear    Transform = "linear"
	TransformQuadratic Transform = "quadratic"
)

type Config struct {
	TopK          int           `yaml:"top_k"`
	Floor         float64       `yaml:"similarity_floor"`
	Transform     Transform     `yaml:"confidence_transform"`
	ContextWindow int           `yaml:"context_window"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
}

func DefaultConfig() Config {
	return Config{
		TopK:          8,
		Floor:         0.35,
		Transform:     TransformLinear,
		ContextWindow: 1,
		QueryTimeout:  5 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TopK <= 0:
		return domain.WrapError(domain.ErrInvalidInput, "matching config", fmt.Errorf("top_k must be positive, got %d", c.TopK))
	case c.Floor < 0 || c.Floor >= 1:
		return domain.WrapError(domain.ErrInvalidInput, "matching config", fmt.Errorf("similarity floor must be in [0,1), got %v", c.Floor))
	case c.ContextWindow < 0:
		return domain.WrapError(domain.ErrInvalidInput, "matching config", fmt.Errorf("context window must not be negative, got %d", c.ContextWindow))
	}
	switch Transform(strings.ToLower(string(c.Transform))) {
	case TransformLinear, TransformQuadratic:
		return nil
	default:
		return domain.WrapError(domain.ErrInvalidInput, "matching config", fmt.Errorf("unknown confidence transform %q", c.Transform))
	}
}

// Confidence rescales similarity from [floor, 1] to [0, 1]. The linear form is
// (s - floor) / (1 - floor); the quadratic form squares it to favour strong
// matches. The floor maps to exactly 0 and the result is clamped to [0,1].
func (c Config) Confidence(similarity float64) float64 {
	if similarity <= c.Floor {
		return 0
	}
	v := (similarity - c.Floor) / (1 - c.Floor)
	if Transform(strings.ToLower(string(c.Transform))) == TransformQuadratic {
		v *= v
	}
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
