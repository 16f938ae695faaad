// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for service-to-service calls.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
