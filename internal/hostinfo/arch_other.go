//go:build !unix

package hostinfo

import "runtime"

func machineArch() (string, error) {
	if runtime.GOARCH == "amd64" {
		return "x86_64", nil
	}
	return runtime.GOARCH, nil
}
