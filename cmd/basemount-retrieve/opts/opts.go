package opts

import (
	"github.com/seqcore/basemount-retrieve/pkg/config"
	"github.com/seqcore/basemount-retrieve/pkg/status"
)

// RootOpts contains shared options used by all commands
type RootOpts struct {
	Config     *config.Config
	StatusMgr  *status.Manager
	UserLogger *status.UserLogger
}
