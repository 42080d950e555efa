package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/accounts":                  "/v1/accounts",
		"/v1/accounts/abc":              "/v1/accounts/:id",
		"/v1/accounts/abc/deactivate":   "/v1/accounts/:id/deactivate",
		"/v1/accounts/abc/extra":        "/v1/accounts/abc/extra",
		"/v1/records/CS25B001":          "/v1/records/:id",
		"/v1/records/CS25B001?full=1":   "/v1/records/:id",
		"/v1/auth/login":                "/v1/auth/login",
		"/v1/auth/refresh?redirect=foo": "/v1/auth/refresh",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
