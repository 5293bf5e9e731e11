package config

import "os"

// proxyEnvVars are the variables client libraries consult to route traffic
// through a proxy. Both spellings are scrubbed.
var proxyEnvVars = []string{
	"http_proxy", "HTTP_PROXY",
	"https_proxy", "HTTPS_PROXY",
	"all_proxy", "ALL_PROXY",
	"no_proxy", "NO_PROXY",
}

// ScrubProxyEnv removes proxy variables from the environment so client code
// exercised against the test server always connects to it directly.
func ScrubProxyEnv() {
	for _, k := range proxyEnvVars {
		os.Unsetenv(k)
	}
}
