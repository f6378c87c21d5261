package clamav

import (
	"net/url"
	"strings"
)

// Routes builds the endpoint URLs of the scan service.
type Routes struct {
	baseURL string
}

func NewRoutes(baseURL string) (Routes, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return Routes{}, err
	}
	return Routes{baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (r Routes) url(parts ...string) string {
	return r.baseURL + "/" + strings.Join(parts, "/")
}

func (r Routes) Info() string {
	return r.url("info")
}

func (r Routes) Health() string {
	return r.url("health")
}

func (r Routes) Monitor() string {
	return r.url("monitor")
}

func (r Routes) Scan() string {
	return r.url("scan")
}

func (r Routes) SSEScan() string {
	return r.url("sse", "scan")
}
