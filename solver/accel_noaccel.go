// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build noaccel

package solver

func acceleratedBackend() (Backend, error) {
	return nil, ErrBackendUnavailable
}
