// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import "errors"

var (
	// ErrIDInUse reports a message id already in flight on the same
	// transport.
	ErrIDInUse = errors.New("request id already in flight")

	// ErrTooLong reports a request too large for both transports.
	ErrTooLong = errors.New("request exceeds the 65535-byte message limit")

	// ErrUnanswered reports a request that timed out after its
	// retries were spent.
	ErrUnanswered = errors.New("request unanswered")

	// ErrUnexpectedID tags a response matching no in-flight request.
	// It is only ever passed to Conf.OnIgnoredError.
	ErrUnexpectedID = errors.New("response id matches no request")

	// ErrMalformed reports a response that failed to decode.
	ErrMalformed = errors.New("malformed response")

	// ErrClosed reports a send on, or interrupted by, a closed
	// resolver.
	ErrClosed = errors.New("resolver closed")
)
