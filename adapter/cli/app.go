package cli

import (
	"errors"

	"github.com/iahome/platform/internal/app"
)

// container holds the wired application for commands that touch storage.
var container *app.Container

// SetContainer sets the global application container.
func SetContainer(c *app.Container) {
	container = c
}

// requireContainer returns the container or an error when it failed to
// initialize, for commands that cannot run without storage.
func requireContainer() (*app.Container, error) {
	if container == nil {
		return nil, errors.New("database not available, check DATABASE_URL")
	}
	return container, nil
}
