// Package autoload initializes the global zerolog logger from the
// environment as a side effect of being imported.
package autoload

import (
	configx "github.com/omniretail/orchestrator/pkg/config"
	logx "github.com/omniretail/orchestrator/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
