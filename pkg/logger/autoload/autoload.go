// Package autoload initialises the global logger from LOG_* variables on import.
package autoload

import (
	configx "github.com/yixiaowang2001/game-sage-agent/pkg/config"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
