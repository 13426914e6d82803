package scraper

import "errors"

var (
	ErrNoActiveTargets     = errors.New("no active targets")
	ErrNoTargetsDiscovered = errors.New("no targets discovered")
	ErrPaused              = errors.New("scraper is paused")
)
