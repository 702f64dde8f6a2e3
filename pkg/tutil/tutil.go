// Package tutil holds small helpers shared by tests.
package tutil

import (
	"os"
	"strings"
)

// IsIntegrationTest reports whether tests that need external services
// (FTP/SFTP servers, object stores) should run. Set FH_TEST=integration
// to enable them.
func IsIntegrationTest() bool {
	testType := os.Getenv("FH_TEST")
	return strings.ToLower(testType) == "integration"
}
