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
	"strconv"
	"time"

	"github.com/cdnforge/edgevideo/internal/config"
)

// TTLForStatus applies the per-origin override table (an exact status code
// like "404" or a class like "5xx") before falling back to the cache-wide
// default table (§4.7).
func TTLForStatus(cc *config.CachingConfig, oc *config.OriginConfig, status int) time.Duration {
	if oc != nil && len(oc.TTLByStatus) > 0 {
		if secs, ok := oc.TTLByStatus[strconv.Itoa(status)]; ok {
			return time.Duration(secs) * time.Second
		}
		class := fmt.Sprintf("%dxx", status/100)
		if secs, ok := oc.TTLByStatus[class]; ok {
			return time.Duration(secs) * time.Second
		}
	}
	return cc.TTL.ForStatus(status)
}

// NeedsRefresh reports whether an artifact with the given configured TTL
// and remaining life should be asynchronously re-put to extend its expiry
// (§4.7 TTL refresh).
func NeedsRefresh(ttl, remaining time.Duration, refreshRatio float64) bool {
	if ttl <= 0 || refreshRatio <= 0 {
		return false
	}
	threshold := time.Duration(float64(ttl) * refreshRatio)
	return remaining < threshold
}
