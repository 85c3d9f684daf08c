package githubsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultTagsPerPage bounds a single tags-listing page, matching the
// GitHub API's own maximum.
const DefaultTagsPerPage = 100

// tagEntry mirrors one element of the GitHub tags-listing response.
type tagEntry struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// ListTags fetches a repository's tags, feeding BuildVersionPlan's major-
// version series selection. A nil client uses defaultHTTPClient.
func ListTags(ctx context.Context, client doFetcher, owner, repo, token string) ([]GitRef, error) {
	if client == nil {
		client = defaultHTTPClient()
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/tags?per_page=%d", owner, repo, DefaultTagsPerPage)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list tags for %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	switch interpretStatus(resp.StatusCode) {
	case outcomeNotFound:
		return nil, nil
	case outcomeOK:
	default:
		return nil, fmt.Errorf("list tags for %s/%s: unexpected status %s", owner, repo, resp.Status)
	}

	var entries []tagEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	refs := make([]GitRef, len(entries))
	for i, e := range entries {
		refs[i] = GitRef{Name: e.Name, SHA: e.Commit.SHA}
	}
	return refs, nil
}
