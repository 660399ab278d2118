package version

import (
	"runtime"
	"time"
)

// Overridden at build time with -ldflags "-X github.com/MrSnakeDoc/pricewatch/internal/version.Version=..."
var (
	Version   = "dev"                           // ex: v0.3.0
	Commit    = "none"                          // ex: 9f3c2e1
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-10-17T09:12:00Z
	GoVersion = runtime.Version()
)
