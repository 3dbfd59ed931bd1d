// Package autoload initializes the global logger from the environment on
// import. Blank-import it from main.
package autoload

import (
	configx "github.com/shaonidutta/convergeai/pkg/config"
	logx "github.com/shaonidutta/convergeai/pkg/logger"
)

func init() {
	conf := configx.MustNew[logx.Config]("log")
	logx.Init(*conf)
}
