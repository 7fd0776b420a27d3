// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/framepub/transport/aws"
	_ "github.com/drblury/framepub/transport/channel"
	_ "github.com/drblury/framepub/transport/http"
	_ "github.com/drblury/framepub/transport/io"
	_ "github.com/drblury/framepub/transport/jetstream"
	_ "github.com/drblury/framepub/transport/kafka"
	_ "github.com/drblury/framepub/transport/nats"
	_ "github.com/drblury/framepub/transport/postgres"
	_ "github.com/drblury/framepub/transport/rabbitmq"
	_ "github.com/drblury/framepub/transport/sqlite"
)
