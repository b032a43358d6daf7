// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package checktranslate maps a CheckResponse's first CheckError onto the
// HTTP status code and message a front-end should return to its caller,
// matching the reference implementation's convert_response table.
package checktranslate

import (
	"net/http"
	"strings"

	sc "google.golang.org/api/servicecontrol/v1"
)

// Result is the outcome of translating a CheckResponse: the HTTP status a
// front-end should respond with, the message to include, and whether the
// triggering API key should be treated as bad (so a caller can, say, stop
// retrying with the same key).
type Result struct {
	Code        int
	Message     string
	APIKeyIsBad bool
}

var ok = Result{Code: http.StatusOK, Message: "", APIKeyIsBad: false}

var unknown = Result{
	Code:        http.StatusInternalServerError,
	Message:     "Request blocked due to unsupported block reason",
	APIKeyIsBad: false,
}

// checkErrorConversion mirrors _CHECK_ERROR_CONVERSION: for each
// CheckError.Code, the result to report and whether the CheckError's
// detail and "for <project id>" should be appended to its message.
var checkErrorConversion = map[string]struct {
	result         Result
	needsProjectID bool
	needsDetail    bool
}{
	"NOT_FOUND": {
		result: Result{http.StatusBadRequest, "Client project not found. Please pass a valid project", false},
	},
	"API_KEY_NOT_FOUND": {
		result: Result{http.StatusBadRequest, "API key not found. Please pass a valid API key", true},
	},
	"API_KEY_EXPIRED": {
		result: Result{http.StatusBadRequest, "API key expired. Please renew the API key", true},
	},
	"API_KEY_INVALID": {
		result: Result{http.StatusBadRequest, "API not valid. Please pass a valid API key", true},
	},
	"SERVICE_NOT_ACTIVATED": {
		result:         Result{http.StatusForbidden, "Please enable the project for", false},
		needsProjectID: true,
		needsDetail:    true,
	},
	"PERMISSION_DENIED": {
		result:      Result{http.StatusForbidden, "Permission denied:", false},
		needsDetail: true,
	},
	"IP_ADDRESS_BLOCKED": {
		result:      Result{http.StatusForbidden, "", false},
		needsDetail: true,
	},
	"REFERER_BLOCKED": {
		result:      Result{http.StatusForbidden, "", false},
		needsDetail: true,
	},
	"CLIENT_APP_BLOCKED": {
		result:      Result{http.StatusForbidden, "", false},
		needsDetail: true,
	},
	"PROJECT_DELETED": {
		result:         Result{http.StatusForbidden, "Project has been deleted", false},
		needsProjectID: true,
	},
	"PROJECT_INVALID": {
		result: Result{http.StatusBadRequest, "Client Project is not valid.  Please pass a valid project", false},
	},
	"BILLING_DISABLED": {
		result:         Result{http.StatusForbidden, "Project has billing disabled. Please enable it", false},
		needsProjectID: true,
	},
	// Fail open for internal server errors.
	"NAMESPACE_LOOKUP_UNAVAILABLE": {result: ok},
	"SERVICE_STATUS_UNAVAILABLE":   {result: ok},
	"BILLING_STATUS_UNAVAILABLE":   {result: ok},
}

// Convert computes the HTTP status, message, and API-key validity for
// resp, appending the error's detail and projectID to the messages that
// call for them. Only
// resp's first CheckError is consulted, matching ESP's own behavior. A
// nil response or one with no CheckErrors translates to a 200 OK.
func Convert(resp *sc.CheckResponse, projectID string) Result {
	if resp == nil || len(resp.CheckErrors) == 0 {
		return ok
	}
	first := resp.CheckErrors[0]
	entry, found := checkErrorConversion[first.Code]
	if !found {
		return unknown
	}
	result := entry.result
	if !entry.needsProjectID && !entry.needsDetail {
		return result
	}

	var parts []string
	if result.Message != "" {
		parts = append(parts, result.Message)
	}
	if entry.needsDetail && first.Detail != "" {
		parts = append(parts, first.Detail)
	}
	if entry.needsProjectID && projectID != "" {
		parts = append(parts, "for "+projectID)
	}
	result.Message = strings.Join(parts, " ")
	return result
}
