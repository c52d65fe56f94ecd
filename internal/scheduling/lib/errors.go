// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"errors"
)

var (
	// This error is returned from the step at any time when the step should be skipped.
	ErrStepSkipped = errors.New("step skipped")
	// A filter could not evaluate a host. The host is rejected, the pass continues.
	ErrFilterEvaluation = errors.New("evaluation failed")
	// The configured step name is not in the registry.
	ErrUnsupportedStep = errors.New("unsupported step")
)
