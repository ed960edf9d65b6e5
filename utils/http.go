package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the service clients (identity, content).
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
