package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientConfig holds the values the browser sign-in SDKs need.
type ClientConfig struct {
	GoogleClientID  string
	AppleServicesID string
	BaseURL         string
}

// ServeClientConfig emits a script that sets window.__XEVORA_CONFIG.
func ServeClientConfig(contextGin *gin.Context, configuration ClientConfig) {
	baseURL := strings.TrimRight(configuration.BaseURL, "/")
	if strings.TrimSpace(baseURL) == "" {
		host := contextGin.Request.Host
		if host == "" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("%s://%s", forwardedProto(contextGin.Request), host)
	}
	payload := struct {
		GoogleClientID  string `json:"googleClientId"`
		AppleServicesID string `json:"appleServicesId"`
		BaseURL         string `json:"baseUrl"`
	}{
		GoogleClientID:  configuration.GoogleClientID,
		AppleServicesID: configuration.AppleServicesID,
		BaseURL:         baseURL,
	}

	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "web.client_config.encode_failed",
		})
		return
	}

	contextGin.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
	contextGin.Header("Pragma", "no-cache")
	contextGin.Header("X-Content-Type-Options", "nosniff")
	contextGin.Data(http.StatusOK, "application/javascript; charset=utf-8",
		[]byte(fmt.Sprintf("window.__XEVORA_CONFIG=Object.freeze(%s);", encoded)))
}

func forwardedProto(request *http.Request) string {
	if request == nil {
		return "https"
	}
	if headerValue := request.Header.Get("X-Forwarded-Proto"); headerValue != "" {
		return headerValue
	}
	if request.TLS != nil {
		return "https"
	}
	return "http"
}

// isHTTPS reports whether request reached the server over TLS, directly or
// through a proxy, or targets localhost.
func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	if strings.EqualFold(request.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host := request.Host
	if index := strings.LastIndex(host, ":"); index >= 0 {
		host = host[:index]
	}
	return host == "localhost"
}
