// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package restore

import "fmt"

// syncPermissions has no Unix-style mode bits to restore on this platform;
// it always reports a skip warning.
func syncPermissions(path, mode string) error {
	return fmt.Errorf("skipping permission restore for %s: not supported on this platform", path)
}
