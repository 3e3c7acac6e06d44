// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

import (
	"fmt"
	"os"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// protectedEnvVars are left alone even if the snapshot disagrees, because
// overwriting them process-globally would be more dangerous than stale.
var protectedEnvVars = map[string]bool{"PATH": true, "HOME": true, "SHELL": true}

func restoreEnvironmentState(env checkpoint.EnvironmentState) EnvironmentResult {
	var result EnvironmentResult
	for key, value := range env.EnvVars {
		if protectedEnvVars[key] {
			result.Skipped = append(result.Skipped, key)
			result.Warnings = append(result.Warnings, fmt.Sprintf("left %s unchanged (protected)", key))
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to set %s: %v", key, err))
			continue
		}
		result.Applied = append(result.Applied, key)
	}
	return result
}
