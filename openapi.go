package bagctl

import _ "embed"

// OpenAPIYAML describes the playback control API served by cmd/api.
//
//go:embed openapi.yaml
var OpenAPIYAML []byte
