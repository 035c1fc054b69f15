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

// Status pairs a business code with its default message.
type Status struct {
	Code int
	Msg  string
}

func failed(code int, msg string) Status {
	return Status{Code: code, Msg: msg}
}

func success(code int, msg string) Status {
	return Status{Code: code, Msg: msg}
}

var (
	Success = success(200, "Request Success")

	Failed        = failed(500, "Request failed")
	InternalError = failed(5000, "Internal error, please contact the administrator")

	BadRequest       = failed(4000, "Bad request")
	NotFound         = failed(4004, "Not found")
	Unauthorized     = failed(4401, "Unauthorized")
	InvalidSignature = failed(4402, "Invalid webhook signature")
	EventIgnored     = failed(4102, "Event type ignored")
)
