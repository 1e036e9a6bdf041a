// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hasher

import "errors"

var errInvalidLength = errors.New("hasher: decoded digest has wrong length")
