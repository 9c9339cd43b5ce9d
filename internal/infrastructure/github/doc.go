// Package github is a narrow client for the GitHub REST contents API.
//
// It reads and writes a single file in a repository through
// GET/PUT /repos/{owner}/{repo}/contents/{path}. Authentication uses a
// personal access token sent as a Bearer credential, the API version header
// is pinned, and non-2xx responses are returned as *APIError so callers can
// branch on IsNotFound and IsConflict.
package github
