package services

import (
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/rs/zerolog"
)

func componentLog(name string) *zerolog.Logger {
	l := logger.Component(name)
	return &l
}
