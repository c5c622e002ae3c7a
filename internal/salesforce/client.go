package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"crm-sync/pkg/converter"
	"crm-sync/pkg/log"
)

// CredentialsProvider supplies the credentials used to open a session.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

type Options struct {
	LoginURL   string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the remote REST API. It is safe for concurrent use; one session is
// shared by all callers and re-established once when the remote rejects its token.
type Client struct {
	httpClient  *http.Client
	loginURL    string
	apiVersion  string
	credentials CredentialsProvider
	logger      zerolog.Logger

	mu          sync.Mutex
	accessToken string
	instanceURL string
	static      bool
}

func NewClient(opts Options, credentials CredentialsProvider) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = opts.Timeout
	}
	return &Client{
		httpClient:  httpClient,
		loginURL:    strings.TrimRight(opts.LoginURL, "/"),
		apiVersion:  strings.TrimPrefix(opts.APIVersion, "v"),
		credentials: credentials,
		logger: log.Logger.With().
			Str("component", "salesforce_client").
			Logger(),
	}
}

// Describe returns the field descriptions of a remote table.
func (c *Client) Describe(ctx context.Context, table string) ([]FieldMetadata, error) {
	body, err := c.get(ctx, c.dataPath("sobjects", url.PathEscape(table), "describe"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	var resp describeResponse
	if err := decodeInto(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode description of %s: %w", table, err)
	}
	c.logger.Debug().Str("table", table).Int("fields", len(resp.Fields)).Msg("Described remote table")
	return resp.Fields, nil
}

// Query runs a SOQL query and returns its first page. includeDeleted selects the
// resource that also returns soft-deleted rows.
func (c *Client) Query(ctx context.Context, soql string, includeDeleted bool) (*QueryResult, error) {
	params := url.Values{}
	params.Set("q", soql)
	body, err := c.get(ctx, c.dataPath(queryResource(includeDeleted)), params)
	if err != nil {
		return nil, err
	}
	return c.parseQueryResult(body)
}

// QueryMore fetches the page a previous result pointed to. next is either the
// nextRecordsUrl path or a bare query locator.
func (c *Client) QueryMore(ctx context.Context, next string, includeDeleted bool) (*QueryResult, error) {
	path := next
	if !strings.HasPrefix(next, "/") {
		path = c.dataPath(queryResource(includeDeleted), url.PathEscape(next))
	}
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return c.parseQueryResult(body)
}

func queryResource(includeDeleted bool) string {
	if includeDeleted {
		return "queryAll"
	}
	return "query"
}

func (c *Client) dataPath(parts ...string) string {
	return "/services/data/v" + c.apiVersion + "/" + strings.Join(parts, "/")
}

func (c *Client) parseQueryResult(body []byte) (*QueryResult, error) {
	var attributes map[string]json.RawMessage
	if err := json.Unmarshal(body, &attributes); err != nil {
		return nil, fmt.Errorf("failed to decode query result: %w", err)
	}
	if unexpected := converter.MissingKeys(attributes, knownQueryAttributes); len(unexpected) > 0 {
		c.logger.Warn().Strs("attributes", unexpected).Msg("Unexpected attributes in query result")
	}

	var resp queryResponse
	if err := decodeInto(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode query result: %w", err)
	}
	if !resp.Done && resp.NextRecordsURL == "" {
		c.logger.Warn().Msg("Query result is neither done nor has a nextRecordsUrl")
	}
	c.logger.Info().Int("records", len(resp.Records)).Msg("Query returned records")

	return &QueryResult{
		Done:           resp.Done,
		TotalSize:      resp.TotalSize,
		NextRecordsURL: resp.NextRecordsURL,
		Records:        resp.Records,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, instanceURL, err := c.session(ctx)
		if err != nil {
			return nil, err
		}

		target := instanceURL + path
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransientError{Err: err}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &TransientError{StatusCode: resp.StatusCode, Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0 && !c.isStatic():
			c.logger.Info().Msg("Session rejected, re-authenticating")
			c.invalidate(token)
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrAuthentication, parseAPIError(resp.StatusCode, body).Message)
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, &TransientError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
		case resp.StatusCode >= http.StatusBadRequest:
			remoteErr := parseAPIError(resp.StatusCode, body)
			c.logger.Error().Int("status", resp.StatusCode).Str("code", remoteErr.Code).Msg(remoteErr.Message)
			return nil, remoteErr
		}
		return body, nil
	}
}

func parseAPIError(statusCode int, body []byte) *RemoteQueryError {
	var errs []apiError
	if err := json.Unmarshal(body, &errs); err == nil && len(errs) > 0 {
		return &RemoteQueryError{StatusCode: statusCode, Code: errs[0].ErrorCode, Message: errs[0].Message}
	}
	return &RemoteQueryError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}

func (c *Client) isStatic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.static
}

func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == token {
		c.accessToken = ""
	}
}

func (c *Client) session(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" {
		return c.accessToken, c.instanceURL, nil
	}

	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.HasStaticToken() {
		c.accessToken = creds.AccessToken
		c.instanceURL = strings.TrimRight(creds.InstanceURL, "/")
		c.static = true
		return c.accessToken, c.instanceURL, nil
	}

	token, instanceURL, err := c.login(ctx, creds)
	if err != nil {
		return "", "", err
	}
	c.accessToken = token
	c.instanceURL = instanceURL
	return c.accessToken, c.instanceURL, nil
}

// login runs the OAuth2 username-password flow. The password is sent with the security
// token appended.
func (c *Client) login(ctx context.Context, creds Credentials) (string, string, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.loginURL + "/services/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := conf.PasswordCredentialsToken(ctx, creds.Username, creds.Password+creds.SecurityToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return "", "", fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return "", "", &TransientError{Err: err}
	}

	instanceURL, _ := tok.Extra("instance_url").(string)
	if instanceURL == "" {
		return "", "", fmt.Errorf("%w: token response has no instance_url", ErrAuthentication)
	}

	c.logger.Info().Str("instance_url", instanceURL).Str("username", creds.Username).Msg("Authenticated")
	return tok.AccessToken, strings.TrimRight(instanceURL, "/"), nil
}
