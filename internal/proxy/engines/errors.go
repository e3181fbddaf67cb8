/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package engines

import (
	"fmt"
	"net/http"
)

// Kind is the closed error taxonomy of §7: a small set of machine-readable
// categories the dispatcher and HTTP layer branch on, as opposed to
// per-component ad-hoc error types.
type Kind string

const (
	KindConfigError         Kind = "config_error"
	KindResolutionError     Kind = "resolution_error"
	KindSourceNotFound      Kind = "source_not_found"
	KindSourceUnauthorized  Kind = "source_unauthorized"
	KindSourceForbidden     Kind = "source_forbidden"
	KindTransformerTransient Kind = "transformer_transient"
	KindTransformerPermanent Kind = "transformer_permanent"
	KindRangeUnsatisfiable  Kind = "range_unsatisfiable"
	KindClientDisconnect    Kind = "client_disconnect"
	KindInternalError       Kind = "internal_error"
)

// HTTPStatus returns the status code a Kind maps to, per §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindResolutionError, KindSourceNotFound:
		return http.StatusNotFound
	case KindSourceUnauthorized, KindSourceForbidden:
		return http.StatusBadGateway
	case KindTransformerPermanent:
		return http.StatusUnprocessableEntity
	case KindRangeUnsatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case KindConfigError, KindInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error carried through C2/C5/C7, wrapping the
// underlying cause while tagging it with a Kind the dispatcher and HTTP
// layer can act on without inspecting error strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Size is the artifact's total byte size, set only on a
	// KindRangeUnsatisfiable error so the HTTP layer can synthesize the
	// required Content-Range: bytes */<size> header (§4.7).
	Size int64
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a typed Error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IsClientDisconnect reports whether err represents a client-initiated
// abort, which §7 requires be treated as silent rather than logged as an
// error.
func IsClientDisconnect(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindClientDisconnect
}
