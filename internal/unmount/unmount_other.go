//go:build !linux && !darwin

package unmount

import "fmt"

func syscallUnmount(path string) error {
	return fmt.Errorf("forced unmount is not supported on this platform")
}

func toolCommands(path string) [][]string {
	return nil
}
