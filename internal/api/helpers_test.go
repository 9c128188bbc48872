package api

import (
	"time"

	"go.uber.org/zap"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

var zapSeverityCritical = zap.String("severity", "critical")
