// Package uniuri generates random strings for generated passwords and lease tokens.
package uniuri
