package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/ledgerops/warehouse/middleware"
)

const requestTimeout = time.Minute

//apiClient calls Warehouse /api/v1 on behalf of one tenant
type apiClient struct {
	host       string
	adminToken string
	tenantID   string
}

func newAPIClient() (*apiClient, error) {
	if adminToken == "" {
		return nil, errors.New("--admin-token is required")
	}
	if tenantID == "" {
		return nil, errors.New("--tenant is required")
	}
	return &apiClient{host: strings.TrimSuffix(host, "/"), adminToken: adminToken, tenantID: tenantID}, nil
}

//get sends GET request with non-empty query params and decodes JSON response into out
func (ac *apiClient) get(path string, params map[string]string, out interface{}) error {
	builder := ac.request(path)
	for name, value := range params {
		if value != "" {
			builder.Param(name, value)
		}
	}
	return ac.fetch(builder, out)
}

//post sends POST request with optional JSON body and decodes JSON response into out
func (ac *apiClient) post(path string, body interface{}, out interface{}) error {
	builder := ac.request(path).Method(http.MethodPost)
	if body != nil {
		builder.BodyJSON(body)
	}
	return ac.fetch(builder, out)
}

func (ac *apiClient) request(path string) *requests.Builder {
	return requests.URL(ac.host+"/api/v1"+path).
		Header(middleware.AdminTokenKey, ac.adminToken).
		Header(middleware.TenantHeader, ac.tenantID)
}

func (ac *apiClient) fetch(builder *requests.Builder, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return builder.
		AddValidator(func(*http.Response) error { return nil }).
		Handle(func(res *http.Response) error {
			if res.StatusCode >= http.StatusBadRequest {
				return responseError(res)
			}
			if out == nil {
				return nil
			}
			return json.NewDecoder(res.Body).Decode(out)
		}).
		Fetch(ctx)
}

//responseError returns error with the server message if the body is ErrorResponse
func responseError(res *http.Response) error {
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("HTTP %d", res.StatusCode)
	}

	errResponse := &middleware.ErrorResponse{}
	if err := json.Unmarshal(body, errResponse); err == nil && errResponse.Message != "" {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, errResponse.Message)
	}
	return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
}
