package logger

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
)

var customLoggerCreators = make(map[string]types.LoggerCreator)

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	customLoggerCreators[loggerName] = creator
}

func NewLogger(config *types.LoggerConfig) (types.Logger, error) {
	if config == nil {
		config = &types.LoggerConfig{Level: "info"}
	}

	switch config.Type {
	case "", "zap":
		return NewDefaultLogger(config)
	default:
		if creator, exists := customLoggerCreators[config.Type]; exists {
			return creator(config.Config)
		}
		return nil, types.Errorf(types.ErrLoggerTypeUnknown, "type: %s", config.Type)
	}
}

// NewNop returns a logger that discards everything. Test helper.
func NewNop() types.Logger {
	return &ZapWrapper{Logger: zap.NewNop()}
}
