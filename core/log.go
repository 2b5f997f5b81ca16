package core

import (
	"github.com/noctis-project/noctis/infrastructure/logger"
	"github.com/noctis-project/noctis/infrastructure/logs"
)

// log is the CORE subsystem logger, grounded on the teacher's
// per-package log.go idiom (mining/log.go, blockdag's coreLog). It
// performs no output by default until infrastructure/logger.InitLogRotators
// has been called by the daemon entrypoint.
var log *logs.Logger = logger.Logger(logger.SubsystemTags.CORE)
