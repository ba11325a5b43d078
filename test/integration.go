package test

import (
	"os"
	"testing"
)

const envIntegration = "WAREHOUSE_INTEGRATION"

//SkipIfNoIntegration skips docker based tests unless WAREHOUSE_INTEGRATION=true or one of the port variables is defined
func SkipIfNoIntegration(t *testing.T, portVariables ...string) {
	if os.Getenv(envIntegration) == "true" {
		return
	}
	for _, variable := range portVariables {
		if os.Getenv(variable) != "" {
			return
		}
	}
	t.Skipf("integration test is skipped: set %s=true to run it", envIntegration)
}
