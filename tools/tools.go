//go:build tools

// Package tools pins the oapi-codegen version used against api/openapi.yaml.
package tools

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
)
