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

// Package runtime holds build-time identity values for the running binary.
package runtime

var (
	// ApplicationName is the name of this application
	ApplicationName = "edgevideo"
	// ApplicationVersion is the version of this application, set via -ldflags at build time
	ApplicationVersion = "dev"
)
