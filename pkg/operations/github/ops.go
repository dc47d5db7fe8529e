package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
)

// Register adds the GitHub operations to the catalog.
func Register(catalog *operations.Catalog, client *Client) {
	catalog.Register(&getRepository{client})
	catalog.Register(&listIssues{client})
	catalog.Register(&createIssue{client})
	catalog.Register(&getFileContents{client})
}

type getRepository struct{ client *Client }

func (o *getRepository) Name() string        { return "get_repository" }
func (o *getRepository) Description() string { return "Fetch repository metadata." }
func (o *getRepository) RequiresAuth() bool  { return false }

func (o *getRepository) Invoke(ctx context.Context, args map[string]any, cred credentials.Credential) (json.RawMessage, error) {
	owner, repo, opErr := ownerRepo(args)
	if opErr != nil {
		return nil, opErr
	}
	return o.client.do(ctx, "GET", fmt.Sprintf("/repos/%s/%s", owner, repo), nil, cred)
}

type listIssues struct{ client *Client }

func (o *listIssues) Name() string        { return "list_issues" }
func (o *listIssues) Description() string { return "List issues in a repository." }
func (o *listIssues) RequiresAuth() bool  { return false }

func (o *listIssues) Invoke(ctx context.Context, args map[string]any, cred credentials.Credential) (json.RawMessage, error) {
	owner, repo, opErr := ownerRepo(args)
	if opErr != nil {
		return nil, opErr
	}
	q := url.Values{}
	if state, ok := args["state"].(string); ok && state != "" {
		q.Set("state", state)
	}
	path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return o.client.do(ctx, "GET", path, nil, cred)
}

type createIssue struct{ client *Client }

func (o *createIssue) Name() string        { return "create_issue" }
func (o *createIssue) Description() string { return "Open a new issue in a repository." }
func (o *createIssue) RequiresAuth() bool  { return true }

func (o *createIssue) Invoke(ctx context.Context, args map[string]any, cred credentials.Credential) (json.RawMessage, error) {
	owner, repo, opErr := ownerRepo(args)
	if opErr != nil {
		return nil, opErr
	}
	title, opErr := stringArg(args, "title")
	if opErr != nil {
		return nil, opErr
	}
	body := map[string]any{"title": title}
	if text, ok := args["body"].(string); ok && text != "" {
		body["body"] = text
	}
	return o.client.do(ctx, "POST", fmt.Sprintf("/repos/%s/%s/issues", owner, repo), body, cred)
}

type getFileContents struct{ client *Client }

func (o *getFileContents) Name() string        { return "get_file_contents" }
func (o *getFileContents) Description() string { return "Read a file from a repository." }
func (o *getFileContents) RequiresAuth() bool  { return false }

func (o *getFileContents) Invoke(ctx context.Context, args map[string]any, cred credentials.Credential) (json.RawMessage, error) {
	owner, repo, opErr := ownerRepo(args)
	if opErr != nil {
		return nil, opErr
	}
	path, opErr := stringArg(args, "path")
	if opErr != nil {
		return nil, opErr
	}
	return o.client.do(ctx, "GET", fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, url.PathEscape(path)), nil, cred)
}

func ownerRepo(args map[string]any) (string, string, *operations.OpError) {
	owner, opErr := stringArg(args, "owner")
	if opErr != nil {
		return "", "", opErr
	}
	repo, opErr := stringArg(args, "repo")
	if opErr != nil {
		return "", "", opErr
	}
	return owner, repo, nil
}
