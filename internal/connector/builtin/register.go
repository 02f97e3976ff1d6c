package builtin

import "github.com/synqx/core/internal/connector"

// RegisterAll installs the reference connectors onto registry.
func RegisterAll(registry *connector.Registry) {
	registry.Register("postgresql", NewPostgreSQLConnector, nil)
	registry.Register("httpapi", NewHTTPAPIConnector, nil)
}
