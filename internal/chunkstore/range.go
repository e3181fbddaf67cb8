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

package chunkstore

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrRangeNotSatisfiable is returned when a Range header cannot be
// resolved against the artifact's actual size (§4.7, synthesizes a 416).
var ErrRangeNotSatisfiable = fmt.Errorf("chunkstore: range not satisfiable")

// ByteRange is a single parsed `bytes=` range, in the three forms RFC 7233
// allows: "a-b", "a-" (open-ended) and "-n" (last n bytes).
type ByteRange struct {
	hasStart bool
	start    int64
	hasEnd   bool
	end      int64
	suffix   bool
	suffixN  int64
}

// ParseRange parses a single-range `Range: bytes=...` header value. Multi-
// range requests (comma-separated) are not supported; the first range is
// used and the rest ignored, matching the common single-range case this
// service serves.
func ParseRange(header string) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("%w: missing bytes= prefix", ErrRangeNotSatisfiable)
	}
	spec := strings.TrimPrefix(header, prefix)
	if idx := strings.IndexByte(spec, ','); idx >= 0 {
		spec = spec[:idx]
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: malformed range %q", ErrRangeNotSatisfiable, header)
	}

	if parts[0] == "" {
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: malformed suffix range %q", ErrRangeNotSatisfiable, header)
		}
		return &ByteRange{suffix: true, suffixN: n}, nil
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("%w: malformed range start %q", ErrRangeNotSatisfiable, header)
	}
	r := &ByteRange{hasStart: true, start: start}
	if parts[1] != "" {
		end, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return nil, fmt.Errorf("%w: malformed range end %q", ErrRangeNotSatisfiable, header)
		}
		r.hasEnd = true
		r.end = end
	}
	return r, nil
}

// Resolve converts the range against an artifact of the given total size,
// clamping an open-ended end to the last byte and returning the absolute,
// inclusive [start, end] span.
func (r *ByteRange) Resolve(total int64) (int64, int64, error) {
	if total <= 0 {
		return 0, 0, fmt.Errorf("%w: empty artifact", ErrRangeNotSatisfiable)
	}
	if r.suffix {
		n := r.suffixN
		if n > total {
			n = total
		}
		return total - n, total - 1, nil
	}
	start := r.start
	if start >= total {
		return 0, 0, fmt.Errorf("%w: start %d beyond size %d", ErrRangeNotSatisfiable, start, total)
	}
	end := total - 1
	if r.hasEnd {
		end = r.end
		if end >= total {
			end = total - 1
		}
	}
	return start, end, nil
}
