// Package storage persists broadcast task records.
package storage
