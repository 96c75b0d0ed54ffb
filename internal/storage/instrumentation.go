package storage

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "duet/internal/storage"

var logger = otelslog.NewLogger(scopeName)
