package segmenttree

import (
	"github.com/noctis-project/noctis/infrastructure/logger"
	"github.com/noctis-project/noctis/infrastructure/logs"
)

var log *logs.Logger = logger.Logger(logger.SubsystemTags.SGMT)
