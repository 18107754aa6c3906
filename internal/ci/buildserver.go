package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"branchgraph.dev/branchgraph/internal/runner"
)

// buildServerStatusMap translates a self-hosted build-review server's
// result state text into the three-state contract.
var buildServerStatusMap = map[string]Status{
	"Successful": Green,
	"Failed":     Red,
	"InProgress": Yellow,
	"Queued":     Yellow,
}

// ResolveBuildServerURLs reads every remote.<name>.buildserver-url from the
// repository's git config, keyed by remote name. A remote with no such key
// has no self-hosted build server fronting it and is simply absent from the
// result.
func ResolveBuildServerURLs(ctx context.Context, g *runner.Git) (map[string]string, error) {
	urls := make(map[string]string)
	err := g.Command("config", "--get-regexp", `remote\..*\.buildserver-url`).Lines(ctx, func(l string) error {
		key, raw, ok := strings.Cut(l, " ")
		if !ok {
			return nil
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "remote."), ".buildserver-url")
		urls[name] = raw
		return nil
	})
	if err != nil {
		if isNoConfigMatch(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return urls, nil
}

// byChangesetResponse is the subset of a build-review server's
// /rest/api/latest/result/byChangeset/<sha> response this provider reads.
type byChangesetResponse struct {
	Results struct {
		Result []struct {
			State string `json:"state"`
		} `json:"result"`
	} `json:"results"`
}

// BuildServerProvider polls a self-hosted build-review server's REST API for
// the result of the build it ran against a given commit. It sends HTTP
// basic auth only with the username and password it was constructed with;
// it reads no credentials itself, neither from git config nor from an OS
// keyring.
type BuildServerProvider struct {
	httpClient *http.Client
	urls       map[string]string // remote name -> base server URL
	username   string
	password   string
}

func NewBuildServerProvider(httpClient *http.Client, urls map[string]string, username, password string) *BuildServerProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BuildServerProvider{httpClient: httpClient, urls: urls, username: username, password: password}
}

func (p *BuildServerProvider) Status(ctx context.Context, remote, sha string) (Status, bool, error) {
	base, ok := p.urls[remote]
	if !ok {
		return "", false, nil
	}

	endpoint, err := url.Parse(strings.TrimRight(base, "/") + "/rest/api/latest/result/byChangeset/" + sha)
	if err != nil {
		return "", false, fmt.Errorf("building build-server URL for %s: %w", remote, err)
	}
	endpoint.RawQuery = "max-result=1"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/json")
	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetching build status from %s: %w", remote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("build server %s returned status %d", remote, resp.StatusCode)
	}

	var parsed byChangesetResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("decoding build status from %s: %w", remote, err)
	}
	if len(parsed.Results.Result) == 0 {
		return "", false, nil
	}

	status, known := buildServerStatusMap[parsed.Results.Result[0].State]
	if !known {
		return "", false, nil
	}
	return status, true, nil
}
