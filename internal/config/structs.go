package config

import (
	"github.com/middlebury/dynamic-add-users/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	Title     string
	DB        DB
	Log       logger.Log
	Webserver Webserver
	Directory Directory
	Login     Login
	Sync      Sync
}

// Webserver implements the admin API settings.
type Webserver struct {
	Disabled       bool   // run the scheduler only
	DisableRecover bool   // disable recover middleware
	Port           int    // listening port for the webserver
	ShutDownTime   int    // seconds checkalive returns 503 before shutdown
	URL            string // base url for the webserver
	APIToken       string // bearer token required on /api, empty disables the check
}

// Sync implements the group sync engine settings.
type Sync struct {
	// IntervalSeconds between two bulk syncs of all registered groups. 0 disables the scheduler.
	IntervalSeconds int
	// RunOnStart runs one bulk sync right after start.
	RunOnStart bool
	// Workers syncing registrations in parallel during a bulk sync.
	Workers int
	// LeaseTTLSeconds is how long a (site, group) lease is held at most.
	LeaseTTLSeconds int
	// Roles lists the site roles weakest first. Empty means the default hierarchy.
	Roles []string
	// Registrations are registered at start, so a fresh database syncs right away.
	Registrations []Registration
}

// Registration keeps GroupID in sync with SiteID at Role.
type Registration struct {
	SiteID  uint64
	GroupID string
	Label   string
	Role    string
}
