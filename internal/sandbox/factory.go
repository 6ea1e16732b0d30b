package sandbox

import (
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/config"
)

// NewFromConfig builds the default registry: JavaScript always, Go when
// enabled and the toolchain is installed. The returned func releases the
// evaluators' resources.
func NewFromConfig(cfg config.SandboxConfig, logger *zap.Logger) (*Registry, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := NewRegistry()
	reg.Register(NewJSEvaluator(cfg.GetTimeout()), "js", "javascript", "jsx")

	cleanup := func() {}
	if cfg.GoEnabled {
		goEval := NewGoEvaluator(cfg.GetGoBinary(), cfg.GetTimeout(), logger)
		if goEval.Available() {
			reg.Register(goEval, "go", "golang")
			cleanup = goEval.Close
		} else {
			logger.Warn("go sandbox disabled: toolchain not found", zap.String("binary", cfg.GetGoBinary()))
			goEval.Close()
		}
	}
	return reg, cleanup
}
