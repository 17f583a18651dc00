// Package main is the dynamic-add-users command. It provisions directory users
// into sites and keeps the roles of registered directory groups in sync, on
// login through the admin API, on demand from the command line and on a
// schedule.
package main
