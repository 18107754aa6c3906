// Package logging provides the ambient structured logger: a console sink
// for one-shot invocations and a rotating file sink (always on) so a
// long-running watch session has a paper trail once its screen is taken
// over by the renderer.
package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogFilePath returns the path to the rotating log file.
// BRANCHGRAPH_LOG_FILE overrides it; otherwise it is
// ~/.branchgraph/logs/branchgraph.log.
func DefaultLogFilePath() string {
	if custom := os.Getenv("BRANCHGRAPH_LOG_FILE"); custom != "" {
		return custom
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "branchgraph.log"
	}

	return filepath.Join(homeDir, ".branchgraph", "logs", "branchgraph.log")
}
