package models

// BuildRequest is the body of a build-trigger call. It is built fresh for
// every invocation and sent exactly once.
type BuildRequest struct {
	AccountName string `json:"accountName"`
	ProjectSlug string `json:"projectSlug"`
	Branch      string `json:"branch"`
	CommitID    string `json:"commitID"`
}

// BuildResponse is the part of the provider's reply that gets logged.
// Every field is optional; success is decided by status code alone.
type BuildResponse struct {
	BuildID     int    `json:"buildId,omitempty"`
	BuildNumber int    `json:"buildNumber,omitempty"`
	Version     string `json:"version,omitempty"`
	Status      string `json:"status,omitempty"`
}
