package topic

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-duet/core/topic"

var logger = otelslog.NewLogger(scopeName)
