// Copyright 2025 Conveyor Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpx

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// AccessLogFormat renders one access-log line per request.
func AccessLogFormat(param gin.LogFormatterParams) string {
	return fmt.Sprintf("%s %s [%s %s] %s %s %v %s %s\n",
		param.TimeStamp.Format("2006/01/02 15:04:05"),
		param.Latency,
		param.Method,
		param.Path,
		param.ClientIP,
		param.Request.Proto,
		param.StatusCode,
		param.Request.UserAgent(),
		param.ErrorMessage,
	)
}
