//go:build !linux && !darwin

package passthrough
