package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/logging"
)

const (
	maxLoggedBodySize = 1000
	maskedValue       = "*****"
)

//secretFields are masked in logged source requests
var secretFields = []string{"credentials", "connection_string"}

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	if r.body.Len() < maxLoggedBodySize {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

//ErrorLogWriter logs tenant, latency, request and response bodies of failed requests.
//Secrets in request bodies are masked
func ErrorLogWriter(c *gin.Context) {
	requestBody, err := bufferRequestBody(c.Request)
	if err != nil {
		logging.Warnf("Failed to buffer HTTP request body for %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrResponse("failed to read request body", err))
		return
	}

	recorder := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = recorder

	started := time.Now()
	c.Next()

	if status := recorder.Status(); status >= http.StatusBadRequest {
		logging.Errorf("[%s] %s %s with body '%s' failed with %d in %s: '%s'", c.GetHeader(TenantHeader),
			c.Request.Method, c.Request.URL.String(), maskSecrets(requestBody), status, time.Since(started), recorder.body.String())
	}
}

//bufferRequestBody reads small bodies and puts them back into the request
func bufferRequestBody(request *http.Request) ([]byte, error) {
	if request.Body == nil || request.ContentLength <= 0 || request.ContentLength >= maxLoggedBodySize {
		return nil, nil
	}

	body, err := io.ReadAll(request.Body)
	_ = request.Body.Close()
	if err != nil {
		return nil, err
	}

	request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func maskSecrets(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	payload := map[string]interface{}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return body
	}

	masked := false
	for _, field := range secretFields {
		if _, ok := payload[field]; ok {
			payload[field] = maskedValue
			masked = true
		}
	}
	if !masked {
		return body
	}

	result, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return result
}
