// Package services holds the business logic behind the flash API routes,
// chiefly the session authority that mints, validates and burns one-time
// flash sessions.
package services

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Service is the base struct embedded by every service
type Service struct {
	ctx context.Context
	log *log.Entry
}

// NewService creates a new service pointer
func NewService(ctx context.Context, log *log.Entry) Service {
	return Service{ctx: ctx, log: log}
}
