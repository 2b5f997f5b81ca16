package p2p

import (
	"github.com/noctis-project/noctis/infrastructure/logger"
	"github.com/noctis-project/noctis/infrastructure/logs"
)

var log *logs.Logger = logger.Logger(logger.SubsystemTags.P2P)
